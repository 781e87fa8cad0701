// Package queue persists item lifecycle records in SQLite so pipeline status
// survives restarts and can be read by the CLI without the daemon.
//
// The Store tracks one row per submitted item: its current phase, final
// status, failure classification, partial-result warnings and the original
// item JSON used for retries. The bounded in-memory channel that feeds the
// worker pool lives in the workflow package; this package is the durable
// mirror of what that channel holds and what the workers are doing.
//
// The database is transient storage for in-flight and recently finished
// items, not a long-term archive. Schema changes bump schemaVersion; users
// clear the database to adopt the new schema.
package queue
