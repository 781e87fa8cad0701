package knowledge

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 2

// Store is the durable knowledge base: documents, facts, entities, quotes,
// data, relationships, daily trends, and the persistent-error store.
type Store struct {
	db   *sql.DB
	path string

	// beforeCommit runs inside Persist after every row is written and before
	// commit. Tests use it to simulate a failure mid-transaction.
	beforeCommit func(*sql.Tx) error
}

// Open initializes or connects to the knowledge database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlstore.Open(ctx, path, sqlstore.Schema{Name: "knowledge", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats summarizes row counts for health reporting.
type Stats struct {
	Documents     int `json:"documents"`
	Facts         int `json:"facts"`
	Entities      int `json:"entities"`
	Quotes        int `json:"quotes"`
	Data          int `json:"data"`
	Relationships int `json:"relationships"`
	Failures      int `json:"failures"`
}

// Stats returns table row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	targets := []struct {
		table string
		dest  *int
	}{
		{"documents", &stats.Documents},
		{"facts", &stats.Facts},
		{"entities", &stats.Entities},
		{"quotes", &stats.Quotes},
		{"data_points", &stats.Data},
		{"relationships", &stats.Relationships},
		{"failures", &stats.Failures},
	}
	for _, target := range targets {
		query, args, err := sq.Select("COUNT(1)").From(target.table).ToSql()
		if err != nil {
			return stats, err
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(target.dest); err != nil {
			return stats, fmt.Errorf("count %s: %w", target.table, err)
		}
	}
	return stats, nil
}
