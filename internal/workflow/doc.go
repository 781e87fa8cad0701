// Package workflow drives content items through the processing phases.
//
// The Manager owns a bounded in-memory queue and a fixed pool of workers.
// Enqueue records the item in the sqlite status store and hands it to the
// queue without blocking; a full queue is reported as backpressure. Each
// worker takes one item and runs the configured stages strictly in order
// (triage, extraction, quotes, linking, scoring, assembly), stopping at the
// first hard failure or when triage discards the item. Soft failures travel
// as annotations on the work state and end up as warnings on a completed
// item.
//
// Shutdown stops intake, drains until the configured timeout and then
// cancels in-flight work. Items left in a processing status by a crash are
// failed on the next Start, and items still queued are replayed.
package workflow
