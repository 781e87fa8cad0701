// Package content defines the items, extracted elements, and per-item work
// state shared by every pipeline phase.
package content
