// Package sqlstore holds the SQLite plumbing shared by the status and
// knowledge stores: connection setup with pragmas, embedded schema creation
// with a version check, and busy-retry helpers.
package sqlstore
