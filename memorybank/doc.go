// Package memorybank implements the companion's long-term memory: a
// multi-collection associative store with Ebbinghaus-style forgetting.
//
// Memories are namespaced by UserID and grouped into four kinds:
// conversations, emotional images, event summaries and user portraits.
// Every retrieval reinforces the returned items (strength +1, recency
// reset), and a periodic maintenance sweep evicts items whose retention
// score has decayed below a threshold. Portraits never expire; they are
// upserted in place.
//
// Architecture:
//   - Collection: vector storage backend for one memory kind
//     (chromem-go for local use, swappable for pgvector in production)
//   - TextEmbedder / ImageEmbedder: text and image vectorization
//     (mock for tests, ONNX MiniLM/CLIP for local, API-based in production)
//   - Bank: orchestrates scoring, reinforcement, upsert and eviction
//   - Assembler: formats retrieval output into a prompt-ready text block
//
// Retrieval is two-phase: similarity search narrows to plausibly relevant
// candidates, then decay re-ranking favors memories that are both relevant
// and either inherently strong or recently reinforced.
package memorybank
