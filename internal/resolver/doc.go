// Package resolver reconciles extracted entities with the durable knowledge
// base. A sync.Map keyed by folded type and name answers repeat lookups; a
// miss falls through to a similarity search in the knowledge store.
package resolver
