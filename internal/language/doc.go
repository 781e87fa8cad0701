// Package language normalizes language codes reported by the LLM or carried
// in source metadata to ISO 639-1, so triage can compare them against the
// pipeline's working language.
package language
