// Package embed provides the optional vector embedding client used by entity
// resolution. It speaks the OpenAI-compatible embeddings wire format.
package embed
