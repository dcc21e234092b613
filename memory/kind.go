package memory

// Kind identifies the structure of a memory's content and determines which
// classification domains process it.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindFact         Kind = "fact"
	KindDocument     Kind = "document"
	KindEntity       Kind = "entity"
	KindReflection   Kind = "reflection"
	KindCode         Kind = "code"
)

// Kinds lists every valid memory kind.
var Kinds = []Kind{
	KindConversation,
	KindFact,
	KindDocument,
	KindEntity,
	KindReflection,
	KindCode,
}

// Valid reports whether k is a known memory kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConversation, KindFact, KindDocument, KindEntity, KindReflection, KindCode:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errValidationf("unknown memory kind: %q", s)
	}
	return k, nil
}

// domainID names a classification domain in the routing table.
type domainID int

const (
	domainEpisodic domainID = iota
	domainSemantic
)

// kindDomains maps each kind to the ordered classification domains that
// process it. Code memories carry both conversational provenance and factual
// content, so they run through episodic first and semantic second (the
// semantic embedding wins).
var kindDomains = map[Kind][]domainID{
	KindConversation: {domainEpisodic},
	KindReflection:   {domainEpisodic},
	KindFact:         {domainSemantic},
	KindDocument:     {domainSemantic},
	KindEntity:       {domainSemantic},
	KindCode:         {domainEpisodic, domainSemantic},
}

// Tier identifies one of the three storage partitions.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierArchived  Tier = "archived"
)

// TierScanOrder is the fixed order in which tiers are scanned for lookups.
var TierScanOrder = []Tier{TierShortTerm, TierLongTerm, TierArchived}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierShortTerm, TierLongTerm, TierArchived:
		return true
	}
	return false
}

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", errValidationf("invalid tier: %q (must be one of %v)", s, TierScanOrder)
	}
	return t, nil
}
