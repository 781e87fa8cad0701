// Package linking implements Phase 4 of the pipeline.
//
// Entities are resolved against the knowledge base (optionally with vector
// embeddings), fact occurrence times are normalized into bounded ranges, and
// the relations prompt produces fact/entity edges and contradictions. Relation
// failures are soft: the item carries a relation_extraction_degraded
// annotation unless the configured escalation streak is reached.
package linking
