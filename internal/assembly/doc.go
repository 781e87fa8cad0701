// Package assembly implements Phase 5: converting an item's graph of
// temporary ids into a positional payload and committing it atomically.
package assembly
