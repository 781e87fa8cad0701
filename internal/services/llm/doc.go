// Package llm provides the OpenAI-compatible chat client used by every
// extraction phase.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Complete: send a phase-labelled Request, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
// PromptClient.Invoke: resolve a phase prompt, render it, and complete it.
// DecodeLLMJSON: decode a payload with one bounded repair pass.
//
// # Admission
//
// All requests share a semaphore sized by llm.max_concurrency and an optional
// token bucket sized by llm.requests_per_minute. The gate is held only while a
// request is on the wire, never across retry waits.
//
// # Retry Behaviour
//
// HTTP 408/429/5xx, network timeouts and empty replies are retried with
// doubling delays (base 1s, max 10s by default). Retry-After overrides the
// computed delay. Each retry logs the phase; the final failure reports how
// many attempts were spent. Context cancellation aborts immediately.
package llm
