// Package daemonrun builds the full newsgraph runtime from configuration and
// runs it in the foreground until interrupted.
package daemonrun
