package jsonfile

import (
	"encoding/json"
	"time"

	"github.com/becomeliminal/memtier/memory"
)

// document is the single on-disk representation of the whole store: all
// three tiers, the secondary index, arbitrary bookkeeping metadata, the
// per-kind schema table, and a snapshot of the tunables. Every mutation
// rewrites the entire document atomically.
type document struct {
	Metadata    docMetadata           `json:"metadata"`
	MemoryIndex memoryIndex           `json:"memory_index"`
	ShortTerm   tierList              `json:"short_term_memory"`
	LongTerm    tierList              `json:"long_term_memory"`
	Archived    tierList              `json:"archived_memory"`
	Schema      map[string]kindSchema `json:"memory_schema"`
	Config      docConfig             `json:"config"`
}

type docMetadata struct {
	Version     string            `json:"version"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	MemoryStats memory.StoreStats `json:"memory_stats"`

	// Keys holds arbitrary persisted bookkeeping values (e.g. the
	// consolidation gate timestamp).
	Keys map[string]string `json:"keys,omitempty"`
}

type memoryIndex struct {
	IndexType       string                       `json:"index_type"`
	IndexParameters map[string]int               `json:"index_parameters"`
	Entries         map[string]memory.IndexEntry `json:"entries"`
}

type kindSchema struct {
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields"`
}

type docConfig struct {
	MemoryManagement map[string]any `json:"memory_management"`
	Retrieval        map[string]any `json:"retrieval"`
	Embedding        map[string]any `json:"embedding"`
}

// tierList decodes leniently: a single malformed record is dropped and
// counted rather than failing the whole document.
type tierList []*memory.Memory

func (l *tierList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(tierList, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		var m memory.Memory
		if err := json.Unmarshal(raw, &m); err != nil {
			dropped++
			continue
		}
		out = append(out, &m)
	}
	if dropped > 0 {
		log.Warnf("dropped %d malformed memory records during load", dropped)
	}
	*l = out
	return nil
}

// newDocument returns a freshly initialized empty document.
func newDocument() *document {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return &document{
		Metadata: docMetadata{
			Version:   "1.0",
			CreatedAt: now,
			UpdatedAt: now,
			Keys:      map[string]string{},
		},
		MemoryIndex: memoryIndex{
			IndexType:       "flat",
			IndexParameters: map[string]int{},
			Entries:         map[string]memory.IndexEntry{},
		},
		ShortTerm: tierList{},
		LongTerm:  tierList{},
		Archived:  tierList{},
		Schema: map[string]kindSchema{
			"conversation": {
				RequiredFields: []string{"role", "message"},
				OptionalFields: []string{"messages", "summary"},
			},
			"fact": {
				RequiredFields: []string{"fact"},
				OptionalFields: []string{"confidence", "domain", "entities"},
			},
			"document": {
				RequiredFields: []string{"title", "text"},
				OptionalFields: []string{"summary"},
			},
			"entity": {
				RequiredFields: []string{"name", "entity_type"},
				OptionalFields: []string{"attributes"},
			},
			"reflection": {
				RequiredFields: []string{"subject", "reflection"},
				OptionalFields: []string{},
			},
			"code": {
				RequiredFields: []string{"language", "code"},
				OptionalFields: []string{"description", "dependencies"},
			},
		},
		Config: docConfig{
			MemoryManagement: map[string]any{
				"short_term_threshold":         memory.DefaultConfig.ShortTermThreshold,
				"consolidation_interval_hours": memory.DefaultConfig.ConsolidationInterval.Hours(),
				"short_term_max_age_days":      memory.DefaultConfig.ShortTermMaxAge.Hours() / 24,
				"archive_after_days":           memory.DefaultConfig.ArchiveAfter.Hours() / 24,
			},
			Retrieval: map[string]any{
				"default_top_k":     memory.DefaultConfig.DefaultTopK,
				"min_similarity":    memory.DefaultConfig.MinSimilarity,
				"recency_weight":    memory.DefaultConfig.RecencyWeight,
				"importance_weight": memory.DefaultConfig.ImportanceWeight,
			},
			Embedding: map[string]any{},
		},
	}
}

// normalize repairs optional sections a hand-edited or older document may
// lack, so the rest of the code never nil-checks them.
func (d *document) normalize() {
	if d.Metadata.Keys == nil {
		d.Metadata.Keys = map[string]string{}
	}
	if d.MemoryIndex.Entries == nil {
		d.MemoryIndex.Entries = map[string]memory.IndexEntry{}
	}
	if d.MemoryIndex.IndexParameters == nil {
		d.MemoryIndex.IndexParameters = map[string]int{}
	}
	if d.MemoryIndex.IndexType == "" {
		d.MemoryIndex.IndexType = "flat"
	}
	if d.ShortTerm == nil {
		d.ShortTerm = tierList{}
	}
	if d.LongTerm == nil {
		d.LongTerm = tierList{}
	}
	if d.Archived == nil {
		d.Archived = tierList{}
	}
	if d.Schema == nil {
		d.Schema = newDocument().Schema
	}
}

// tier returns the slice backing the given tier.
func (d *document) tier(t memory.Tier) *tierList {
	switch t {
	case memory.TierShortTerm:
		return &d.ShortTerm
	case memory.TierLongTerm:
		return &d.LongTerm
	default:
		return &d.Archived
	}
}

// tierOf reports which tier currently holds id, scanning in the fixed
// lookup order.
func (d *document) tierOf(id string) (memory.Tier, bool) {
	for _, t := range memory.TierScanOrder {
		for _, m := range *d.tier(t) {
			if m.ID == id {
				return t, true
			}
		}
	}
	return "", false
}

// find returns the record with the given id and its tier.
func (d *document) find(id string) (*memory.Memory, memory.Tier, bool) {
	for _, t := range memory.TierScanOrder {
		for _, m := range *d.tier(t) {
			if m.ID == id {
				return m, t, true
			}
		}
	}
	return nil, "", false
}

// upsert replaces the record with the same id inside tier t, or appends it.
func (d *document) upsert(mem *memory.Memory, t memory.Tier) {
	slot := d.tier(t)
	for i, existing := range *slot {
		if existing.ID == mem.ID {
			(*slot)[i] = mem
			return
		}
	}
	*slot = append(*slot, mem)
}

// remove deletes id from tier t, reporting whether it was present.
func (d *document) remove(id string, t memory.Tier) bool {
	slot := d.tier(t)
	for i, existing := range *slot {
		if existing.ID == id {
			*slot = append((*slot)[:i], (*slot)[i+1:]...)
			return true
		}
	}
	return false
}

// updateIndex refreshes the secondary index entry for a record.
func (d *document) updateIndex(mem *memory.Memory, t memory.Tier) {
	recency := mem.LastAccessed
	if recency.IsZero() {
		recency = mem.CreatedAt
	}
	entry := memory.IndexEntry{
		Tier:       t,
		Kind:       mem.Kind,
		Importance: mem.Importance,
	}
	if !recency.IsZero() {
		entry.Recency = recency.UTC().Format(time.RFC3339Nano)
	}
	d.MemoryIndex.Entries[mem.ID] = entry
}

// refreshStats recomputes the per-tier counts.
func (d *document) refreshStats() {
	short := len(d.ShortTerm)
	long := len(d.LongTerm)
	archived := len(d.Archived)
	d.Metadata.MemoryStats = memory.StoreStats{
		TotalMemories:    short + long + archived,
		ActiveMemories:   short + long,
		ArchivedMemories: archived,
		ShortTermCount:   short,
		LongTermCount:    long,
	}
}
