// Package scoring implements Phase 4.5: contextual importance scoring.
//
// Each fact is described by Features drawn from the day's trend record and
// scored by a Model. HTTPModel calls an external service; HeuristicModel is
// the built-in fallback.
package scoring
