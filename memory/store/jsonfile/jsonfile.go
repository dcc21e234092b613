// Package jsonfile implements the memory.Store interface on a single JSON
// document with atomic rewrite semantics.
//
// Every mutating operation rewrites the whole document via
// write-to-temp-then-rename, so the on-disk file is never observable in a
// partially written state: a crash mid-write leaves the previous valid
// document intact. A corrupt or missing document on load degrades to a
// freshly initialized empty store rather than an error.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/memtier/memory"
)

var log = logrus.WithField("component", "memory.jsonfile")

// Store is a file-backed memory.Store. Mutations are serialized by a single
// write lock; reads take snapshots under the read lock, so they observe
// either the pre- or post-state of any in-flight write.
type Store struct {
	path string

	mu  sync.RWMutex
	doc *document
}

var _ memory.Store = (*Store)(nil)

// loadOutcome is the result of the load-or-initialize decision point.
type loadOutcome int

const (
	loadOK loadOutcome = iota
	loadMissing
	loadCorrupt
)

// Open loads the document at path, creating parent directories as needed.
// Missing and corrupt documents both start fresh; only an unusable parent
// directory is an error.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &memory.PersistenceError{Op: "mkdir", Err: err}
		}
	}

	doc, outcome := loadDocument(path)
	switch outcome {
	case loadOK:
		stats := doc.Metadata.MemoryStats
		log.Infof("loaded memory file %s with %d memories", path, stats.TotalMemories)
	case loadMissing:
		log.Infof("memory file %s not found, starting fresh", path)
	case loadCorrupt:
		log.Errorf("memory file %s is corrupt, starting fresh", path)
	}

	return &Store{path: path, doc: doc}, nil
}

func loadDocument(path string) (*document, loadOutcome) {
	data, err := os.ReadFile(path)
	if err != nil {
		return newDocument(), loadMissing
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return newDocument(), loadCorrupt
	}
	doc.normalize()
	doc.refreshStats()
	return &doc, loadOK
}

// Store upserts a memory into the named tier and persists atomically.
func (s *Store) Store(ctx context.Context, mem *memory.Memory, tier memory.Tier) error {
	if err := validateRecord(mem, tier); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A move into tier must not leave a stale copy elsewhere.
	for _, t := range memory.TierScanOrder {
		if t != tier {
			s.doc.remove(mem.ID, t)
		}
	}
	s.doc.upsert(mem.Clone(), tier)
	s.doc.updateIndex(mem, tier)
	s.doc.refreshStats()
	return s.saveLocked()
}

// Get returns the first record matching id in tier scan order.
func (s *Store) Get(ctx context.Context, id string) (*memory.Memory, memory.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mem, tier, ok := s.doc.find(id); ok {
		return mem.Clone(), tier, nil
	}
	return nil, "", memory.ErrNotFound
}

// GetTier returns the tier currently holding id.
func (s *Store) GetTier(ctx context.Context, id string) (memory.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tier, ok := s.doc.tierOf(id); ok {
		return tier, nil
	}
	return "", memory.ErrNotFound
}

// Update overwrites in place when the tier is unchanged and otherwise moves
// the record; either way the result is persisted as one document rewrite, so
// no durable state ever shows the memory in two tiers or in none.
func (s *Store) Update(ctx context.Context, mem *memory.Memory, newTier memory.Tier) error {
	if err := validateRecord(mem, newTier); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.doc.tierOf(mem.ID); ok && current != newTier {
		s.doc.remove(mem.ID, current)
	}
	s.doc.upsert(mem.Clone(), newTier)
	s.doc.updateIndex(mem, newTier)
	s.doc.refreshStats()
	return s.saveLocked()
}

// Delete removes every matching id from whichever tier holds it.
func (s *Store) Delete(ctx context.Context, ids []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		for _, t := range memory.TierScanOrder {
			if s.doc.remove(id, t) {
				deleted++
			}
		}
		delete(s.doc.MemoryIndex.Entries, id)
	}
	s.doc.refreshStats()

	if err := s.saveLocked(); err != nil {
		return deleted > 0, err
	}
	return deleted > 0, nil
}

// Search scans every tier for embedded memories and ranks them by cosine
// similarity to the query embedding.
func (s *Store) Search(ctx context.Context, embedding []float32, opts memory.SearchOptions) ([]memory.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []memory.SearchResult
	for _, t := range memory.TierScanOrder {
		for _, m := range *s.doc.tier(t) {
			if len(m.Embedding) == 0 {
				continue
			}
			if !kindMatches(m.Kind, opts.Kinds) {
				continue
			}
			sim := cosineSimilarity(embedding, m.Embedding)
			if sim < opts.MinSimilarity {
				continue
			}
			results = append(results, memory.SearchResult{
				Memory:     m.Clone(),
				Tier:       t,
				Similarity: sim,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// List gathers memories from the selected tier(s), newest first.
func (s *Store) List(ctx context.Context, opts memory.ListOptions) ([]memory.ListResult, error) {
	tiers := memory.TierScanOrder
	if opts.Tier != "" {
		if !opts.Tier.Valid() {
			return nil, &memory.ValidationError{Reason: fmt.Sprintf("invalid tier: %q", opts.Tier)}
		}
		tiers = []memory.Tier{opts.Tier}
	}

	s.mu.RLock()
	var results []memory.ListResult
	for _, t := range tiers {
		for _, m := range *s.doc.tier(t) {
			if !kindMatches(m.Kind, opts.Kinds) {
				continue
			}
			results = append(results, memory.ListResult{Memory: m.Clone(), Tier: t})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return nil, nil
		}
		results = results[opts.Offset:]
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// GetMetadata reads a persisted bookkeeping value.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.doc.Metadata.Keys[key]
	return val, ok, nil
}

// SetMetadata writes a persisted bookkeeping value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Metadata.Keys[key] = value
	return s.saveLocked()
}

// Stats returns the current per-tier counts. The cached counts are
// recomputed by every mutation before it persists, so a plain read under
// the read lock is always current.
func (s *Store) Stats(ctx context.Context) (memory.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.doc.Metadata.MemoryStats, nil
}

// Close is a no-op; the store holds no resources beyond the document file.
func (s *Store) Close() error { return nil }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// saveLocked atomically rewrites the document. Callers hold the write lock.
// On failure the temp file is removed and the previous on-disk document is
// left untouched; the in-memory state is then ahead of disk and the error
// tells the caller durability was not achieved.
func (s *Store) saveLocked() error {
	s.doc.Metadata.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return &memory.PersistenceError{Op: "encode", Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return &memory.PersistenceError{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &memory.PersistenceError{Op: "rename", Err: err}
	}
	return nil
}

func validateRecord(mem *memory.Memory, tier memory.Tier) error {
	if mem == nil || mem.ID == "" {
		return &memory.ValidationError{Reason: "memory must have an id"}
	}
	if !tier.Valid() {
		return &memory.ValidationError{Reason: fmt.Sprintf("invalid tier: %q (must be one of %v)", tier, memory.TierScanOrder)}
	}
	return nil
}

func kindMatches(k memory.Kind, filter []memory.Kind) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == k {
			return true
		}
	}
	return false
}

// cosineSimilarity is the normalized dot product of two vectors, computed in
// float64. Zero-norm or mismatched-length inputs score 0.0; there is no
// division by zero on any input.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
