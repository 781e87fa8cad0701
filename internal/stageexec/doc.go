// Package stageexec runs a single pipeline phase against an item's work
// state, recording the phase status and logging the outcome.
package stageexec
