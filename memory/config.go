package memory

import "time"

// Config holds the tunables of the memory system. Loading and merging
// configuration files is the caller's concern; the zero value of any field
// falls back to the matching DefaultConfig value. That means an explicit
// zero is not representable here: a zero similarity floor is set per call
// via RetrieveParams.MinSimilarity, and the scoring weights are always
// nonzero.
type Config struct {
	// ShortTermThreshold is the importance cutoff for tier placement.
	// Memories with importance below it are placed in long_term, the rest
	// in short_term. Evaluated at store time and again on updates that
	// change importance.
	ShortTermThreshold float64

	// RecencyWeight and ImportanceWeight blend into the combined retrieval
	// score: sim*(1-RecencyWeight-ImportanceWeight) + recency*RecencyWeight
	// + importance*ImportanceWeight.
	RecencyWeight    float64
	ImportanceWeight float64

	// MinSimilarity is the default similarity floor for retrieval [0.0-1.0].
	// Zero means DefaultConfig.MinSimilarity; pass an explicit zero floor
	// per call through RetrieveParams.MinSimilarity.
	MinSimilarity float64

	// DefaultTopK is the retrieval limit used when the caller passes none.
	DefaultTopK int

	// ConsolidationInterval gates the periodic tier sweep. The sweep runs at
	// most once per interval; the gate timestamp is persisted so it survives
	// restarts.
	ConsolidationInterval time.Duration

	// ShortTermMaxAge is how long a short_term memory may go unaccessed
	// before the sweep demotes it to long_term.
	ShortTermMaxAge time.Duration

	// ArchiveAfter is how long a never-accessed long_term memory may sit
	// before the sweep archives it.
	ArchiveAfter time.Duration
}

// DefaultConfig returns the defaults used throughout.
var DefaultConfig = &Config{
	ShortTermThreshold:    0.3,
	RecencyWeight:         0.3,
	ImportanceWeight:      0.7,
	MinSimilarity:         0.6,
	DefaultTopK:           5,
	ConsolidationInterval: 24 * time.Hour,
	ShortTermMaxAge:       7 * 24 * time.Hour,
	ArchiveAfter:          30 * 24 * time.Hour,
}

// withDefaults returns a copy of c with zero fields replaced by defaults.
// A nil c yields DefaultConfig itself.
func (c *Config) withDefaults() *Config {
	if c == nil {
		return DefaultConfig
	}
	out := *c
	if out.ShortTermThreshold == 0 {
		out.ShortTermThreshold = DefaultConfig.ShortTermThreshold
	}
	if out.RecencyWeight == 0 {
		out.RecencyWeight = DefaultConfig.RecencyWeight
	}
	if out.ImportanceWeight == 0 {
		out.ImportanceWeight = DefaultConfig.ImportanceWeight
	}
	if out.MinSimilarity == 0 {
		out.MinSimilarity = DefaultConfig.MinSimilarity
	}
	if out.DefaultTopK == 0 {
		out.DefaultTopK = DefaultConfig.DefaultTopK
	}
	if out.ConsolidationInterval == 0 {
		out.ConsolidationInterval = DefaultConfig.ConsolidationInterval
	}
	if out.ShortTermMaxAge == 0 {
		out.ShortTermMaxAge = DefaultConfig.ShortTermMaxAge
	}
	if out.ArchiveAfter == 0 {
		out.ArchiveAfter = DefaultConfig.ArchiveAfter
	}
	return &out
}
