// Package triage implements Phase 1: markup stripping, whitespace cleanup,
// relevance triage for articles, language detection and translation into the
// working language. Fragments never take the discard path.
package triage
