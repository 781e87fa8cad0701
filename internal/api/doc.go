// Package api defines the wire-format types shared by the HTTP daemon, the
// CLI and the MCP server, plus a small HTTP client for the daemon.
//
// # Key Types
//
// ArticleRequest/FragmentRequest: submission payloads. They convert to
// content.Item; an empty id on an article is filled with a generated uuid.
//
// ItemStatus: transport view of a queue.Item lifecycle record.
//
// HealthResponse: pipeline counters, per-phase readiness, status-store
// counts and knowledge-store row counts.
//
// Failure: a persistent-error store record without the raw item body.
//
// # Design Notes
//
// JSON tags are snake_case. Timestamps are RFC3339 with milliseconds in UTC.
// Error bodies always carry an "error" message and, when known, the failure
// classification.
package api
