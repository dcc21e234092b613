// Package cache wraps an embedder with an in-process embedding cache.
//
// Embedding the same text twice is common: every update re-embeds
// content, and retrieval queries often repeat. The cache keys on the
// exact text and short-circuits the backing embedder on a hit.
package cache

import (
	"context"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/memtier/memory"
)

// Config holds cache sizing.
type Config struct {
	// MaxEntries is the approximate number of embeddings to keep.
	// Defaults to 10000.
	MaxEntries int64
}

// Embedder caches embeddings from a backing embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with an embedding cache. A nil config uses the defaults.
func New(inner memory.Embedder, cfg *Config) (*Embedder, error) {
	maxEntries := int64(10000)
	if cfg != nil && cfg.MaxEntries > 0 {
		maxEntries = cfg.MaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text, or embeds and caches it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached.([]float32), nil
	}

	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, embedding, 1)
	return embedding, nil
}

// EmbedBatch embeds texts, fetching cached entries and batching only
// the misses through the backing embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			out[i] = cached.([]float32)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		embeddings, err := e.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, embedding := range embeddings {
			out[missingIdx[j]] = embedding
			e.cache.Set(missing[j], embedding, 1)
		}
	}

	return out, nil
}

// Dimensions returns the backing embedder's embedding size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Ristretto admits
// entries asynchronously, so a Set is not immediately visible to Get.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache's resources.
func (e *Embedder) Close() {
	e.cache.Close()
}
