package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "memory")

// EpisodicDomain classifies experiential memories: conversations,
// reflections, and the conversational side of code snippets. It extracts
// the embedding text for a record and attaches the resulting vector.
type EpisodicDomain struct {
	embedder Embedder

	mu        sync.Mutex
	processed map[Kind]int
}

// NewEpisodicDomain creates an episodic classification domain.
func NewEpisodicDomain(embedder Embedder) *EpisodicDomain {
	return &EpisodicDomain{
		embedder:  embedder,
		processed: make(map[Kind]int),
	}
}

// Process extracts the memory's embedding text and attaches its embedding.
// A failed or dimension-mismatched embedding call propagates as an
// EmbeddingError and leaves the memory unchanged.
func (d *EpisodicDomain) Process(ctx context.Context, mem *Memory) error {
	log.Debugf("processing episodic memory %s", mem.ID)

	embedding, err := embedContent(ctx, d.embedder, mem.Content)
	if err != nil {
		return err
	}
	mem.Embedding = embedding

	d.mu.Lock()
	d.processed[mem.Kind]++
	d.mu.Unlock()
	return nil
}

// Stats returns per-kind processing counts since startup.
func (d *EpisodicDomain) Stats() DomainStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DomainStats{Processed: copyCounts(d.processed)}
}

// DomainStats is a classification domain's self-reported summary.
type DomainStats struct {
	Processed map[Kind]int `json:"processed"`
}

func copyCounts(in map[Kind]int) map[Kind]int {
	out := make(map[Kind]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// embedContent runs the embedder over a content's embedding text and checks
// the returned dimension against the embedder's contract.
func embedContent(ctx context.Context, embedder Embedder, content Content) ([]float32, error) {
	embedding, err := embedder.Embed(ctx, content.EmbedText())
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if want := embedder.Dimensions(); want > 0 && len(embedding) != want {
		return nil, &EmbeddingError{Err: fmt.Errorf("dimension mismatch: got %d, expected %d", len(embedding), want)}
	}
	return embedding, nil
}
