// Package daemon coordinates the long-running newsgraph process.
//
// It wires configuration, the status store, the knowledge store and the
// workflow manager into a single lifecycle with flock-based locking to prevent
// multiple instances, and exposes the submission and status HTTP API.
//
// Keep orchestration logic here: individual phases live in their own packages
// while the daemon focuses on startup, shutdown and the outer surface.
package daemon
