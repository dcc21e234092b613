package memory

import (
	"context"
	"sync"
)

// SemanticDomain classifies knowledge memories: facts, documents, entities,
// and the factual side of code snippets.
type SemanticDomain struct {
	embedder Embedder

	mu        sync.Mutex
	processed map[Kind]int
}

// NewSemanticDomain creates a semantic classification domain.
func NewSemanticDomain(embedder Embedder) *SemanticDomain {
	return &SemanticDomain{
		embedder:  embedder,
		processed: make(map[Kind]int),
	}
}

// Process extracts the memory's embedding text and attaches its embedding.
// Same error contract as EpisodicDomain.Process.
func (d *SemanticDomain) Process(ctx context.Context, mem *Memory) error {
	log.Debugf("processing semantic memory %s", mem.ID)

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
func (d *SemanticDomain) Stats() DomainStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DomainStats{Processed: copyCounts(d.processed)}
}
