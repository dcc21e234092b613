// Package memory provides a tiered, semantically searchable memory store
// for agents.
//
// Memories are structured records (conversations, facts, documents, entities,
// reflections, code snippets) that are embedded into vector space and ranked
// at retrieval time by a blend of semantic similarity, recency, and
// importance. Records live in one of three storage tiers (short_term,
// long_term, archived) and migrate between them via an importance threshold
// at write time and a periodic consolidation sweep.
//
// Architecture:
//   - Store: Tier-partitioned persistence with a similarity index
//     (jsonfile for the local single-document format)
//   - Embedder: Text-to-vector conversion (mock for tests, Ollama or ONNX
//     for real semantic search, ristretto cache wrapper for either)
//   - Episodic/Semantic domains: Per-kind embedding text extraction
//   - Temporal domain: Lifecycle stamps, blended scoring, consolidation
//   - Manager: The single caller-facing orchestration surface
//
// The Manager API (StoreMemory, RetrieveMemories, ListMemories, UpdateMemory,
// DeleteMemories, Stats) is transport-agnostic and intended to be wrapped by
// any tool-call protocol, HTTP handler, or CLI without the core depending on
// that transport's shapes.
package memory
