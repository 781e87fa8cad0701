// Package main hosts the newsgraph CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into calls against the
// daemon HTTP API: submitting articles and fragments, inspecting item status
// and pipeline health, and retrying persisted failures. It also scaffolds
// configuration, checks prompt files, runs the daemon in the foreground, and
// exposes the API as MCP tools over stdio.
//
// Keep this package lean: new behavior belongs in the internal packages first,
// surfaced here through dedicated commands or flags.
package main
