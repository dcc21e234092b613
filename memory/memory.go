package memory

import (
	"context"
	"encoding/json"
	"time"
)

// Memory is a single stored unit of information. The zero value is not
// usable; records are built by the Manager (StoreMemory) or decoded from a
// Store's persisted document.
//
// A memory's tier is not part of the record itself: it is the record's
// container membership inside the Store, so a memory is in exactly one tier
// at any time.
type Memory struct {
	ID         string
	Kind       Kind
	Content    Content
	Importance float64

	// Embedding is populated by a classification domain. A memory without
	// one is excluded from similarity search but still appears in listings.
	Embedding []float32

	// Metadata and Context are caller-extensible and passed through
	// uninterpreted.
	Metadata map[string]any
	Context  map[string]any

	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	AccessCount  int
}

// memoryJSON is the on-disk shape of a record, matching the persisted
// document format (kind under "type", ISO-8601 timestamps).
type memoryJSON struct {
	ID           string          `json:"id"`
	Type         Kind            `json:"type"`
	Content      json.RawMessage `json:"content"`
	Importance   float64         `json:"importance"`
	Embedding    []float32       `json:"embedding,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Context      map[string]any  `json:"context,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	LastAccessed string          `json:"last_accessed,omitempty"`
	LastModified string          `json:"last_modified,omitempty"`
	AccessCount  int             `json:"access_count"`
}

// MarshalJSON implements json.Marshaler.
func (m *Memory) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(memoryJSON{
		ID:           m.ID,
		Type:         m.Kind,
		Content:      content,
		Importance:   m.Importance,
		Embedding:    m.Embedding,
		Metadata:     m.Metadata,
		Context:      m.Context,
		CreatedAt:    formatTime(m.CreatedAt),
		LastAccessed: formatTime(m.LastAccessed),
		LastModified: formatTime(m.LastModified),
		AccessCount:  m.AccessCount,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds and malformed
// content are hard errors; unparsable timestamps are not, they decode to the
// zero time so that one stale record cannot fail a whole document (scoring
// treats an unknown timestamp as middling recency).
func (m *Memory) UnmarshalJSON(data []byte) error {
	var raw memoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return errValidationf("memory must have an id")
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	m.ID = raw.ID
	m.Kind = raw.Type
	m.Content = content
	m.Importance = raw.Importance
	m.Embedding = raw.Embedding
	m.Metadata = raw.Metadata
	m.Context = raw.Context
	m.CreatedAt = parseTime(raw.CreatedAt)
	m.LastAccessed = parseTime(raw.LastAccessed)
	m.LastModified = parseTime(raw.LastModified)
	m.AccessCount = raw.AccessCount
	return nil
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// results without aliasing the store's in-memory document.
func (m *Memory) Clone() *Memory {
	out := *m
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	out.Metadata = cloneMap(m.Metadata)
	out.Context = cloneMap(m.Context)
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// timeLayouts covers RFC 3339 plus the zone-less ISO-8601 form older
// documents carry.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// IndexEntry is the lightweight secondary record a Store keeps per memory
// for fast listing without loading full content. It mirrors a subset of the
// record and must stay consistent with it on every mutation.
type IndexEntry struct {
	Tier       Tier    `json:"tier"`
	Kind       Kind    `json:"type"`
	Importance float64 `json:"importance"`
	Recency    string  `json:"recency"`
}

// SearchResult is one similarity-search hit.
type SearchResult struct {
	Memory     *Memory
	Tier       Tier
	Similarity float64
}

// ListResult is one listing entry with its tier membership attached.
type ListResult struct {
	Memory *Memory
	Tier   Tier
}

// SearchOptions filter a similarity search.
type SearchOptions struct {
	// Limit truncates the result set; <= 0 means no truncation.
	Limit int

	// Kinds restricts results to the given kinds; empty means all.
	Kinds []Kind

	// MinSimilarity discards candidates scoring below it.
	MinSimilarity float64
}

// ListOptions filter a listing.
type ListOptions struct {
	// Kinds restricts results to the given kinds; empty means all.
	Kinds []Kind

	// Limit and Offset paginate the created_at-descending ordering.
	// Limit <= 0 means no limit.
	Limit  int
	Offset int

	// Tier restricts the listing to one tier; empty means all three.
	Tier Tier
}

// StoreStats are the store-level memory counts.
type StoreStats struct {
	TotalMemories    int `json:"total_memories"`
	ActiveMemories   int `json:"active_memories"`
	ArchivedMemories int `json:"archived_memories"`
	ShortTermCount   int `json:"short_term_count"`
	LongTermCount    int `json:"long_term_count"`
}

// Store is the tier-partitioned persistence backend. Implementations must
// serialize mutating operations against each other so that a memory is never
// observable in two tiers or in none, and reads must see either the pre- or
// post-state of any in-flight write, never a partial document.
type Store interface {
	// Store upserts a memory into the named tier (replace-in-place if the
	// id already exists there), refreshes the index entry, and persists
	// atomically. A missing id or invalid tier is a ValidationError.
	Store(ctx context.Context, mem *Memory, tier Tier) error

	// Get scans the tiers in TierScanOrder and returns the first match
	// along with its tier, or ErrNotFound.
	Get(ctx context.Context, id string) (*Memory, Tier, error)

	// GetTier returns only the tier holding id, or ErrNotFound.
	GetTier(ctx context.Context, id string) (Tier, error)

	// Update overwrites a memory in place when its tier is unchanged, and
	// otherwise moves it: removal from the old tier and insertion into the
	// new one are persisted as a single document rewrite. An id absent from
	// all tiers is stored fresh into newTier.
	Update(ctx context.Context, mem *Memory, newTier Tier) error

	// Delete removes every matching id from whichever tier holds it and
	// reports whether at least one record was removed.
	Delete(ctx context.Context, ids []string) (bool, error)

	// Search scans all tiers for embedded memories, filters by kind and
	// minimum cosine similarity, and returns hits sorted by similarity
	// descending. Zero-norm vectors score 0.0.
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]SearchResult, error)

	// List returns memories from the selected tier(s) sorted by created_at
	// descending, paginated by opts.
	List(ctx context.Context, opts ListOptions) ([]ListResult, error)

	// GetMetadata reads an arbitrary persisted bookkeeping value.
	GetMetadata(ctx context.Context, key string) (string, bool, error)

	// SetMetadata writes an arbitrary persisted bookkeeping value.
	SetMetadata(ctx context.Context, key, value string) error

	// Stats returns the current per-tier counts.
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), ollama and onnx (real models), cache
// (ristretto wrapper around any of them).
//
// The embedding call is the dominant suspension point of the system and
// should be assumed high-latency; EmbedBatch exists for bulk ingestion.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts to embedding vectors, one per
	// input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
