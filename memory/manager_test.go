package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/memtier/memory"
	"github.com/becomeliminal/memtier/memory/store/jsonfile"
)

// wordsEmbedder hashes each word into a vector bucket, so texts sharing
// words have positive cosine similarity and identical texts score 1.0.
// That is enough semantic structure to exercise retrieval end to end.
type wordsEmbedder struct {
	dims int
}

func newWordsEmbedder() *wordsEmbedder {
	return &wordsEmbedder{dims: 64}
}

func (e *wordsEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?;:\"'")))
		embedding[h.Sum32()%uint32(e.dims)]++
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding, nil
}

func (e *wordsEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = embedding
	}
	return out, nil
}

func (e *wordsEmbedder) Dimensions() int { return e.dims }

// failingEmbedder always errors, for testing embedding failure paths.
type failingEmbedder struct{}

func (e *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

func (e *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

func (e *failingEmbedder) Dimensions() int { return 64 }

func newTestManager(t *testing.T) (*memory.Manager, *jsonfile.Store) {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return memory.NewManager(store, newWordsEmbedder(), nil), store
}

func TestManager_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	id, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "Paris is the capital of France"},
	})
	if err != nil {
		t.Fatalf("Failed to store memory: %v", err)
	}
	if !strings.HasPrefix(id, "mem_") {
		t.Errorf("id = %q, want mem_ prefix", id)
	}

	// Default importance 0.5 lands in short_term.
	tier, err := store.GetTier(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get tier: %v", err)
	}
	if tier != memory.TierShortTerm {
		t.Errorf("tier = %s, want short_term", tier)
	}

	// Identical query text embeds to the identical vector.
	minSim := 0.9
	results, err := mgr.RetrieveMemories(ctx, "Paris is the capital of France", memory.RetrieveParams{
		MinSimilarity: &minSim,
	})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != id {
		t.Errorf("result id = %s, want %s", results[0].ID, id)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("similarity = %v, want ~1.0", results[0].Similarity)
	}
}

func TestManager_SemanticRetrieval(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	_, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "the capital of France is Paris"},
	})
	if err != nil {
		t.Fatalf("Failed to store memory: %v", err)
	}
	_, err = mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "ristretto needs two shots"},
	})
	if err != nil {
		t.Fatalf("Failed to store memory: %v", err)
	}

	// Word overlap pulls in the geography fact, not the coffee one.
	minSim := 0.3
	results, err := mgr.RetrieveMemories(ctx, "what is the capital of France", memory.RetrieveParams{
		MinSimilarity: &minSim,
	})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	fact := results[0].Content.(*memory.FactContent)
	if !strings.Contains(fact.Fact, "Paris") {
		t.Errorf("retrieved wrong fact: %q", fact.Fact)
	}
}

func TestManager_TierPlacementByImportance(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	low, high := 0.2, 0.5
	lowID, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "low importance"},
		Importance: &low,
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	highID, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "high importance"},
		Importance: &high,
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	if tier, _ := store.GetTier(ctx, lowID); tier != memory.TierLongTerm {
		t.Errorf("importance 0.2 placed in %s, want long_term", tier)
	}
	if tier, _ := store.GetTier(ctx, highID); tier != memory.TierShortTerm {
		t.Errorf("importance 0.5 placed in %s, want short_term", tier)
	}
}

func TestManager_ValidationRejectsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	bad := 1.5
	cases := []memory.StoreParams{
		{Kind: "bogus", Content: &memory.FactContent{Fact: "x"}},
		{Kind: memory.KindFact},
		{Kind: memory.KindFact, Content: &memory.ConversationContent{Role: "user", Message: "x"}},
		{Kind: memory.KindFact, Content: &memory.FactContent{}},
		{Kind: memory.KindFact, Content: &memory.FactContent{Fact: "x"}, Importance: &bad},
	}
	for i, p := range cases {
		if _, err := mgr.StoreMemory(ctx, p); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalMemories != 0 {
		t.Errorf("store has %d memories after rejected writes, want 0", stats.TotalMemories)
	}
}

func TestManager_EmbeddingFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "memory.json"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	mgr := memory.NewManager(store, &failingEmbedder{}, nil)

	_, err = mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "doomed"},
	})
	var embErr *memory.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %v", err)
	}

	// Nothing was persisted.
	stats, _ := store.Stats(ctx)
	if stats.TotalMemories != 0 {
		t.Errorf("store has %d memories, want 0", stats.TotalMemories)
	}
}

func TestManager_AccessBookkeeping(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	id, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "remember me"},
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	before, _, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}

	minSim := 0.9
	if _, err := mgr.RetrieveMemories(ctx, "remember me", memory.RetrieveParams{MinSimilarity: &minSim}); err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}

	after, _, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if after.AccessCount != before.AccessCount+1 {
		t.Errorf("AccessCount = %d, want %d", after.AccessCount, before.AccessCount+1)
	}
	if after.LastAccessed.Before(before.LastAccessed) {
		t.Errorf("LastAccessed went backwards: %v -> %v", before.LastAccessed, after.LastAccessed)
	}
}

func TestManager_RetrieveRanksByImportance(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	low, high := 0.31, 0.9
	if _, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "shared topic minor detail"},
		Importance: &low,
	}); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	highID, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "shared topic major detail"},
		Importance: &high,
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	minSim := 0.3
	results, err := mgr.RetrieveMemories(ctx, "shared topic", memory.RetrieveParams{MinSimilarity: &minSim})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Same similarity and recency, so importance decides the order.
	if results[0].ID != highID {
		t.Errorf("results[0] = %s, want the high-importance memory", results[0].ID)
	}
}

func TestManager_RetrieveSerializesZeroImportance(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	zero := 0.0
	if _, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "barely worth keeping"},
		Importance: &zero,
	}); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	minSim := 0.9
	results, err := mgr.RetrieveMemories(ctx, "barely worth keeping", memory.RetrieveParams{
		MinSimilarity:   &minSim,
		IncludeMetadata: true,
	})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	// A stored importance of 0.0 must survive serialization: transport
	// wrappers marshal these results directly.
	data, err := json.Marshal(results[0])
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}
	if !strings.Contains(string(data), `"importance":0`) {
		t.Errorf("importance key dropped at 0.0: %s", data)
	}
}

func TestManager_UpdateContentAndImportance(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	imp := 0.5
	id, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:       memory.KindFact,
		Content:    &memory.FactContent{Fact: "old text"},
		Importance: &imp,
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	before, _, _ := store.Get(ctx, id)

	newImp := 0.1
	err = mgr.UpdateMemory(ctx, id, memory.Update{
		Content:    &memory.FactContent{Fact: "entirely different wording"},
		Importance: &newImp,
		Metadata:   map[string]any{"edited": true},
	})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	after, tier, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if after.Content.(*memory.FactContent).Fact != "entirely different wording" {
		t.Errorf("content not updated: %v", after.Content)
	}
	if tier != memory.TierLongTerm {
		t.Errorf("tier = %s after dropping importance to 0.1, want long_term", tier)
	}
	if after.Metadata["edited"] != true {
		t.Errorf("metadata not merged: %v", after.Metadata)
	}

	// Content change re-embeds.
	same := true
	for i := range after.Embedding {
		if after.Embedding[i] != before.Embedding[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("embedding unchanged after content update")
	}

	if err := mgr.UpdateMemory(ctx, "mem_missing", memory.Update{Importance: &newImp}); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_UpdateRejectsKindChange(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	id, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "i am a fact"},
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	err = mgr.UpdateMemory(ctx, id, memory.Update{
		Content: &memory.ConversationContent{Role: "user", Message: "now a conversation"},
	})
	var verr *memory.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected *ValidationError for kind change, got %v", err)
	}
}

func TestManager_ListPagination(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	for i := 0; i < 12; i++ {
		_, err := mgr.StoreMemory(ctx, memory.StoreParams{
			Kind:    memory.KindFact,
			Content: &memory.FactContent{Fact: fmt.Sprintf("fact number %d", i)},
		})
		if err != nil {
			t.Fatalf("Failed to store: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	page, err := mgr.ListMemories(ctx, memory.ListParams{Limit: 5, Offset: 5, IncludeContent: true})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(page) != 5 {
		t.Fatalf("got %d entries, want 5", len(page))
	}
	// Newest first: offset 5 of 12 starts at the 7th-newest, fact 6.
	if got := page[0].Content.(*memory.FactContent).Fact; got != "fact number 6" {
		t.Errorf("page[0] = %q, want fact number 6", got)
	}

	// Offset past the end is empty, not an error.
	empty, err := mgr.ListMemories(ctx, memory.ListParams{Offset: 50})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d entries past the end, want 0", len(empty))
	}
}

func TestManager_DeleteMemories(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	id, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "short lived"},
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	deleted, err := mgr.DeleteMemories(ctx, []string{id, "mem_never_existed"})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if !deleted {
		t.Error("DeleteMemories = false, want true")
	}
	if _, _, err := store.Get(ctx, id); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	deleted, err = mgr.DeleteMemories(ctx, []string{"mem_never_existed"})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if deleted {
		t.Error("DeleteMemories = true for unknown ids, want false")
	}
}

func TestManager_Consolidate(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	now := time.Now().UTC()

	// A short_term memory untouched for 10 days should demote.
	stale := &memory.Memory{
		ID:           "mem_stale",
		Kind:         memory.KindFact,
		Content:      &memory.FactContent{Fact: "stale"},
		Importance:   0.5,
		CreatedAt:    now.Add(-10 * 24 * time.Hour),
		LastAccessed: now.Add(-10 * 24 * time.Hour),
	}
	if err := store.Store(ctx, stale, memory.TierShortTerm); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	// A long_term memory never accessed and 40 days old should archive.
	old := &memory.Memory{
		ID:           "mem_old",
		Kind:         memory.KindFact,
		Content:      &memory.FactContent{Fact: "forgotten"},
		Importance:   0.2,
		CreatedAt:    now.Add(-40 * 24 * time.Hour),
		LastAccessed: now.Add(-40 * 24 * time.Hour),
	}
	if err := store.Store(ctx, old, memory.TierLongTerm); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	// A fresh short_term memory stays put.
	fresh := &memory.Memory{
		ID:           "mem_fresh",
		Kind:         memory.KindFact,
		Content:      &memory.FactContent{Fact: "fresh"},
		Importance:   0.5,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := store.Store(ctx, fresh, memory.TierShortTerm); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	if err := mgr.Consolidate(ctx); err != nil {
		t.Fatalf("Failed to consolidate: %v", err)
	}

	if tier, _ := store.GetTier(ctx, "mem_stale"); tier != memory.TierLongTerm {
		t.Errorf("stale memory in %s, want long_term", tier)
	}
	if tier, _ := store.GetTier(ctx, "mem_old"); tier != memory.TierArchived {
		t.Errorf("old memory in %s, want archived", tier)
	}
	if tier, _ := store.GetTier(ctx, "mem_fresh"); tier != memory.TierShortTerm {
		t.Errorf("fresh memory in %s, want short_term", tier)
	}

	// The sweep stamps the gate so the periodic path waits an interval.
	if _, ok, _ := store.GetMetadata(ctx, "last_consolidation"); !ok {
		t.Error("consolidation gate not stamped")
	}
}

func TestManager_KindFilterAndCodeDualDomain(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	if _, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindCode,
		Content: &memory.CodeContent{Language: "go", Code: "sort.Slice(keys, less)"},
	}); err != nil {
		t.Fatalf("Failed to store code memory: %v", err)
	}
	if _, err := mgr.StoreMemory(ctx, memory.StoreParams{
		Kind:    memory.KindFact,
		Content: &memory.FactContent{Fact: "code: sort.Slice(keys, less) language: go"},
	}); err != nil {
		t.Fatalf("Failed to store fact: %v", err)
	}

	minSim := 0.3
	results, err := mgr.RetrieveMemories(ctx, "language: go code: sort.Slice(keys, less)", memory.RetrieveParams{
		Kinds:         []memory.Kind{memory.KindCode},
		MinSimilarity: &minSim,
	})
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	for _, r := range results {
		if r.Kind != memory.KindCode {
			t.Errorf("kind filter leaked a %s memory", r.Kind)
		}
	}
	if len(results) == 0 {
		t.Error("kind-filtered retrieval returned nothing")
	}

	stats, err := mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	// Code memories run through both classification domains.
	if stats.Episodic.Processed[memory.KindCode] != 1 {
		t.Errorf("episodic processed %d code memories, want 1", stats.Episodic.Processed[memory.KindCode])
	}
	if stats.Semantic.Processed[memory.KindCode] != 1 {
		t.Errorf("semantic processed %d code memories, want 1", stats.Semantic.Processed[memory.KindCode])
	}
}
