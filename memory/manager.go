package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Manager orchestrates the classification, temporal, and persistence layers
// behind the four public memory operations. It is the only surface callers
// interact with; raw Store access would bypass the tier-exclusivity and
// validation discipline enforced here.
type Manager struct {
	store    Store
	embedder Embedder
	config   *Config

	episodic *EpisodicDomain
	semantic *SemanticDomain
	temporal *TemporalDomain
}

// NewManager creates a Manager over the given store and embedder. A nil
// config uses DefaultConfig.
func NewManager(store Store, embedder Embedder, config *Config) *Manager {
	cfg := config.withDefaults()
	return &Manager{
		store:    store,
		embedder: embedder,
		config:   cfg,
		episodic: NewEpisodicDomain(embedder),
		semantic: NewSemanticDomain(embedder),
		temporal: NewTemporalDomain(store, cfg),
	}
}

// StoreParams are the inputs to StoreMemory.
type StoreParams struct {
	Kind    Kind
	Content Content

	// Importance in [0.0, 1.0]; nil defaults to 0.5.
	Importance *float64

	// Metadata and Context are stored uninterpreted.
	Metadata map[string]any
	Context  map[string]any
}

// DefaultImportance is used when a caller supplies none.
const DefaultImportance = 0.5

// StoreMemory validates, classifies, embeds, and persists a new memory,
// returning its generated id.
//
// Tier placement: importance below ShortTermThreshold goes to long_term,
// everything else to short_term. Low-importance memories skip the working
// set and land directly in the retention tier.
func (m *Manager) StoreMemory(ctx context.Context, p StoreParams) (string, error) {
	if !p.Kind.Valid() {
		return "", errValidationf("unknown memory kind: %q", p.Kind)
	}
	if p.Content == nil {
		return "", errValidationf("memory must have content")
	}
	if p.Content.Kind() != p.Kind {
		return "", errValidationf("content is for kind %q, not %q", p.Content.Kind(), p.Kind)
	}
	if err := p.Content.Validate(); err != nil {
		return "", err
	}

	importance := DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}
	if importance < 0.0 || importance > 1.0 {
		return "", errValidationf("importance must be between 0.0 and 1.0")
	}

	mem := &Memory{
		ID:         "mem_" + uuid.New().String(),
		Kind:       p.Kind,
		Content:    p.Content,
		Importance: importance,
		Metadata:   p.Metadata,
		Context:    p.Context,
	}
	if mem.Metadata == nil {
		mem.Metadata = map[string]any{}
	}
	if mem.Context == nil {
		mem.Context = map[string]any{}
	}

	m.temporal.StampNew(mem)

	if err := m.classify(ctx, mem); err != nil {
		return "", err
	}

	tier := TierShortTerm
	if importance < m.config.ShortTermThreshold {
		tier = TierLongTerm
	}

	if err := m.store.Store(ctx, mem, tier); err != nil {
		return "", err
	}

	log.Infof("stored %s memory %s in %s tier", mem.Kind, mem.ID, tier)
	return mem.ID, nil
}

// classify routes the memory through its kind's classification domains in
// table order.
func (m *Manager) classify(ctx context.Context, mem *Memory) error {
	for _, id := range kindDomains[mem.Kind] {
		var err error
		switch id {
		case domainEpisodic:
			err = m.episodic.Process(ctx, mem)
		case domainSemantic:
			err = m.semantic.Process(ctx, mem)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RetrieveParams are the inputs to RetrieveMemories.
type RetrieveParams struct {
	// Limit caps the result count; <= 0 uses Config.DefaultTopK.
	Limit int

	// Kinds restricts results to the given kinds; empty means all.
	Kinds []Kind

	// MinSimilarity overrides Config.MinSimilarity; nil uses the config
	// value.
	MinSimilarity *float64

	// IncludeMetadata adds metadata, timestamps, and importance to results.
	IncludeMetadata bool
}

// Retrieved is one retrieval result, ordered by blended score.
type Retrieved struct {
	ID         string  `json:"id"`
	Kind       Kind    `json:"type"`
	Content    Content `json:"content"`
	Similarity float64 `json:"similarity"`

	// Populated only when RetrieveParams.IncludeMetadata is set. Importance
	// keeps its key even at 0.0, which is a legitimate stored value.
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	LastAccessed string         `json:"last_accessed,omitempty"`
	Importance   float64        `json:"importance"`
}

// RetrieveMemories embeds the query, runs a similarity search across all
// tiers, re-ranks hits by the blended temporal score, and records an access
// against every returned memory.
func (m *Manager) RetrieveMemories(ctx context.Context, query string, p RetrieveParams) ([]Retrieved, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = m.config.DefaultTopK
	}
	minSim := m.config.MinSimilarity
	if p.MinSimilarity != nil {
		minSim = *p.MinSimilarity
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("embed query: %w", err)}
	}

	hits, err := m.store.Search(ctx, embedding, SearchOptions{
		Limit:         limit,
		Kinds:         p.Kinds,
		MinSimilarity: minSim,
	})
	if err != nil {
		return nil, err
	}

	ranked := m.temporal.rank(hits)

	results := make([]Retrieved, 0, len(ranked))
	for _, r := range ranked {
		out := Retrieved{
			ID:         r.Memory.ID,
			Kind:       r.Memory.Kind,
			Content:    r.Memory.Content,
			Similarity: r.Similarity,
		}
		if p.IncludeMetadata {
			out.Metadata = r.Memory.Metadata
			out.CreatedAt = formatTime(r.Memory.CreatedAt)
			out.LastAccessed = formatTime(r.Memory.LastAccessed)
			out.Importance = r.Memory.Importance
		}
		results = append(results, out)
	}

	log.Debugf("retrieved %d memories for query", len(results))

	for _, r := range ranked {
		if err := m.temporal.TouchAccess(ctx, r.Memory.ID); err != nil {
			log.Warnf("access bookkeeping for %s failed: %v", r.Memory.ID, err)
		}
	}

	return results, nil
}

// ListParams are the inputs to ListMemories.
type ListParams struct {
	Kinds  []Kind
	Limit  int // <= 0 defaults to 20
	Offset int
	Tier   Tier // empty means all tiers

	// IncludeContent adds each memory's content to the listing.
	IncludeContent bool
}

// Listed is one listing entry.
type Listed struct {
	ID           string  `json:"id"`
	Kind         Kind    `json:"type"`
	CreatedAt    string  `json:"created_at,omitempty"`
	LastAccessed string  `json:"last_accessed,omitempty"`
	Importance   float64 `json:"importance"`
	Tier         Tier    `json:"tier"`
	Content      Content `json:"content,omitempty"`
}

// ListMemories returns memories sorted newest-first with pagination, without
// touching access bookkeeping.
func (m *Manager) ListMemories(ctx context.Context, p ListParams) ([]Listed, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	listed, err := m.store.List(ctx, ListOptions{
		Kinds:  p.Kinds,
		Limit:  limit,
		Offset: p.Offset,
		Tier:   p.Tier,
	})
	if err != nil {
		return nil, err
	}

	results := make([]Listed, 0, len(listed))
	for _, entry := range listed {
		out := Listed{
			ID:           entry.Memory.ID,
			Kind:         entry.Memory.Kind,
			CreatedAt:    formatTime(entry.Memory.CreatedAt),
			LastAccessed: formatTime(entry.Memory.LastAccessed),
			Importance:   entry.Memory.Importance,
			Tier:         entry.Tier,
		}
		if p.IncludeContent {
			out.Content = entry.Memory.Content
		}
		results = append(results, out)
	}
	return results, nil
}

// Update describes a partial update to an existing memory. Nil fields are
// left untouched; Metadata and Context merge into the existing maps rather
// than replacing them.
type Update struct {
	Content    Content
	Importance *float64
	Metadata   map[string]any
	Context    map[string]any
}

// UpdateMemory applies upd to the memory with the given id. A content change
// re-runs classification (and therefore re-embeds); an importance change
// re-evaluates tier placement under the same threshold rule as StoreMemory.
// Returns ErrNotFound if the id is absent from every tier.
func (m *Manager) UpdateMemory(ctx context.Context, id string, upd Update) error {
	mem, currentTier, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if upd.Content != nil {
		if upd.Content.Kind() != mem.Kind {
			return errValidationf("content is for kind %q, not %q", upd.Content.Kind(), mem.Kind)
		}
		if err := upd.Content.Validate(); err != nil {
			return err
		}
		mem.Content = upd.Content
		if err := m.classify(ctx, mem); err != nil {
			return err
		}
	}

	if upd.Importance != nil {
		if *upd.Importance < 0.0 || *upd.Importance > 1.0 {
			return errValidationf("importance must be between 0.0 and 1.0")
		}
		mem.Importance = *upd.Importance
	}

	for k, v := range upd.Metadata {
		if mem.Metadata == nil {
			mem.Metadata = map[string]any{}
		}
		mem.Metadata[k] = v
	}
	for k, v := range upd.Context {
		if mem.Context == nil {
			mem.Context = map[string]any{}
		}
		mem.Context[k] = v
	}

	m.temporal.TouchModification(mem)

	// Tier placement is reconsidered only when importance changed.
	newTier := currentTier
	if upd.Importance != nil {
		switch {
		case *upd.Importance >= m.config.ShortTermThreshold && currentTier != TierShortTerm:
			newTier = TierShortTerm
		case *upd.Importance < m.config.ShortTermThreshold && currentTier == TierShortTerm:
			newTier = TierLongTerm
		}
	}

	if err := m.store.Update(ctx, mem, newTier); err != nil {
		return err
	}

	log.Infof("updated memory %s", id)
	return nil
}

// DeleteMemories removes the given ids from whichever tiers hold them and
// reports whether at least one memory was deleted.
func (m *Manager) DeleteMemories(ctx context.Context, ids []string) (bool, error) {
	deleted, err := m.store.Delete(ctx, ids)
	if err != nil {
		return false, err
	}
	if deleted {
		log.Infof("deleted %d candidate memories", len(ids))
	}
	return deleted, nil
}

// Consolidate forces a tier-consolidation sweep immediately, bypassing the
// interval gate. The gate timestamp is refreshed afterwards.
func (m *Manager) Consolidate(ctx context.Context) error {
	return m.temporal.Consolidate(ctx)
}

// Stats aggregates store counts with each domain's self-reported summary.
type Stats struct {
	Store    StoreStats    `json:"store"`
	Episodic DomainStats   `json:"episodic_domain"`
	Semantic DomainStats   `json:"semantic_domain"`
	Temporal TemporalStats `json:"temporal_domain"`
}

// Stats returns memory statistics across the store and all domains.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	storeStats, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Store:    storeStats,
		Episodic: m.episodic.Stats(),
		Semantic: m.semantic.Stats(),
		Temporal: m.temporal.Stats(ctx),
	}, nil
}
