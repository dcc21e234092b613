package memory

import (
	"context"
	"sort"
	"time"
)

// metaLastConsolidation is the store metadata key gating the sweep.
const metaLastConsolidation = "last_consolidation"

// TemporalDomain stamps lifecycle timestamps, computes the recency-adjusted
// retrieval score, and runs the periodic tier-consolidation sweep.
type TemporalDomain struct {
	store  Store
	config *Config
}

// NewTemporalDomain creates a temporal domain over the given store.
func NewTemporalDomain(store Store, config *Config) *TemporalDomain {
	return &TemporalDomain{
		store:  store,
		config: config.withDefaults(),
	}
}

// StampNew sets the creation-time lifecycle fields: all three timestamps
// equal, access count zero.
func (d *TemporalDomain) StampNew(mem *Memory) {
	now := time.Now().UTC()
	mem.CreatedAt = now
	mem.LastAccessed = now
	mem.LastModified = now
	mem.AccessCount = 0
}

// TouchModification sets the modification timestamp.
func (d *TemporalDomain) TouchModification(mem *Memory) {
	mem.LastModified = time.Now().UTC()
}

// TouchAccess records a retrieval of the memory: last_accessed advances,
// access_count increments, and the record is rewritten at its current tier.
// A vanished id is logged and ignored; retrieval bookkeeping is not allowed
// to fail the read path. Afterwards the consolidation gate is checked.
func (d *TemporalDomain) TouchAccess(ctx context.Context, id string) error {
	mem, tier, err := d.store.Get(ctx, id)
	if err != nil {
		log.Warnf("memory %s not found for access update", id)
		return nil
	}

	mem.LastAccessed = time.Now().UTC()
	mem.AccessCount++

	if err := d.store.Update(ctx, mem, tier); err != nil {
		return err
	}

	d.maybeConsolidate(ctx)
	return nil
}

// Score blends a similarity score with the memory's recency and importance:
//
//	combined = sim*(1-wr-wi) + recency*wr + importance*wi
//
// where recency = 1/(1+days since last access), days floored to whole days
// so a memory touched today scores a full 1.0. A memory with no usable
// timestamp gets a middling recency of 0.5 instead of failing the batch.
func (d *TemporalDomain) Score(mem *Memory, similarity float64) float64 {
	recency := 0.5
	ref := mem.LastAccessed
	if ref.IsZero() {
		ref = mem.CreatedAt
	}
	if !ref.IsZero() {
		days := int(time.Since(ref).Hours() / 24)
		if days < 0 {
			days = 0
		}
		recency = 1.0 / (1.0 + float64(days))
	}

	wr := d.config.RecencyWeight
	wi := d.config.ImportanceWeight
	return similarity*(1.0-wr-wi) + recency*wr + mem.Importance*wi
}

// scoredResult pairs a search hit with its blended score.
type scoredResult struct {
	SearchResult
	Combined float64
}

// rank re-orders similarity hits by blended score, descending. It runs after
// the store's similarity-threshold filter: a candidate discarded there is
// never reconsidered here.
func (d *TemporalDomain) rank(results []SearchResult) []scoredResult {
	scored := make([]scoredResult, len(results))
	for i, r := range results {
		scored[i] = scoredResult{SearchResult: r, Combined: d.Score(r.Memory, r.Similarity)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Combined > scored[j].Combined
	})
	return scored
}

// maybeConsolidate runs the sweep if the persisted gate says one is due.
// Sweep failures are logged, not propagated; the next due operation retries.
func (d *TemporalDomain) maybeConsolidate(ctx context.Context) {
	val, ok, err := d.store.GetMetadata(ctx, metaLastConsolidation)
	if err != nil {
		return
	}
	if !ok {
		// First run: start the clock rather than sweeping a brand-new store.
		if err := d.store.SetMetadata(ctx, metaLastConsolidation, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			log.Warnf("failed to stamp consolidation gate: %v", err)
		}
		return
	}
	last := parseTime(val)
	if !last.IsZero() && time.Since(last) <= d.config.ConsolidationInterval {
		return
	}
	if err := d.Consolidate(ctx); err != nil {
		log.Warnf("consolidation sweep failed: %v", err)
	}
}

// Consolidate runs the tier sweep immediately and stamps the gate:
//
//   - short_term memories not accessed for ShortTermMaxAge demote to
//     long_term
//   - long_term memories never accessed and older than ArchiveAfter move
//     to archived
//
// Archived memories are never promoted automatically.
func (d *TemporalDomain) Consolidate(ctx context.Context) error {
	log.Info("running memory consolidation")
	now := time.Now().UTC()

	demoted, err := d.sweepTier(ctx, TierShortTerm, TierLongTerm, func(m *Memory) bool {
		return staleness(m, now) > d.config.ShortTermMaxAge
	})
	if err != nil {
		return err
	}

	archived, err := d.sweepTier(ctx, TierLongTerm, TierArchived, func(m *Memory) bool {
		return m.AccessCount == 0 && staleness(m, now) > d.config.ArchiveAfter
	})
	if err != nil {
		return err
	}

	if err := d.store.SetMetadata(ctx, metaLastConsolidation, now.Format(time.RFC3339Nano)); err != nil {
		return err
	}

	log.Infof("consolidation moved %d to long_term, %d to archived", demoted, archived)
	return nil
}

// sweepTier moves every memory in from matching the predicate into to.
func (d *TemporalDomain) sweepTier(ctx context.Context, from, to Tier, stale func(*Memory) bool) (int, error) {
	listed, err := d.store.List(ctx, ListOptions{Tier: from})
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, entry := range listed {
		if !stale(entry.Memory) {
			continue
		}
		if err := d.store.Update(ctx, entry.Memory, to); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// staleness is the time since the memory was last touched. Records with no
// usable timestamp report zero staleness so the sweep leaves them alone.
func staleness(m *Memory, now time.Time) time.Duration {
	ref := m.LastAccessed
	if ref.IsZero() {
		ref = m.CreatedAt
	}
	if ref.IsZero() {
		return 0
	}
	return now.Sub(ref)
}

// TemporalStats is the temporal domain's self-reported summary.
type TemporalStats struct {
	LastConsolidation time.Time `json:"last_consolidation"`
	NextConsolidation time.Time `json:"next_consolidation"`
}

// Stats reports the consolidation schedule.
func (d *TemporalDomain) Stats(ctx context.Context) TemporalStats {
	last := time.Time{}
	if val, ok, err := d.store.GetMetadata(ctx, metaLastConsolidation); err == nil && ok {
		last = parseTime(val)
	}
	return TemporalStats{
		LastConsolidation: last,
		NextConsolidation: last.Add(d.config.ConsolidationInterval),
	}
}
