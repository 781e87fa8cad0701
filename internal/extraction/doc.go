// Package extraction implements Phase 2: the extraction prompt turns cleaned
// text into facts and entities. Every element gets a fresh id from the item's
// arena, and entities sharing a folded name and type collapse into one.
package extraction
