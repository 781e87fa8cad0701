// Package knowledge owns the durable knowledge base: documents and their
// fragments, facts, entities and their occurrences, quotes, quantitative data,
// relationships, daily trend counters, narrative threads and the
// persistent-error store.
//
// Persist commits one item's graph in a single SQLite transaction. Payload
// cross references are positions, never temporary ids, so nothing scoped to
// an in-flight item can reach disk. SimilarEntities backs entity resolution and
// TrendForDate backs contextual importance scoring.
package knowledge
