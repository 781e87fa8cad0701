package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/config"
	"newsgraph/internal/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrDuplicate is returned when an item with the same id is still in flight.
var ErrDuplicate = errors.New("item already queued or processing")

const itemColumns = "id, kind, document_id, status, classification, error_message, warnings_json, item_json, request_id, created_at, updated_at, started_at, finished_at"

// Store manages item status persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the status database under the configured data dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(context.Background(), cfg.QueueDBPath())
}

// OpenPath opens the status database at an explicit path.
func OpenPath(ctx context.Context, path string) (*Store, error) {
	db, err := sqlstore.Open(ctx, path, sqlstore.Schema{Name: "queue", SQL: schemaSQL, Version: schemaVersion})
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

// Insert records a new item as queued. An existing record in a terminal
// status is replaced so finished items can be resubmitted; an in-flight one
// yields ErrDuplicate.
func (s *Store) Insert(ctx context.Context, item *Item) error {
	if item == nil || strings.TrimSpace(item.ID) == "" {
		return errors.New("insert item: id required")
	}
	now := time.Now().UTC()
	item.Status = StatusQueued
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Classification = ""
	item.ErrorMessage = ""
	item.Warnings = nil
	item.StartedAt = nil
	item.FinishedAt = nil

	return sqlstore.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var existing Status
		err = tx.QueryRowContext(ctx, `SELECT status FROM items WHERE id = ?`, item.ID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("check existing item: %w", err)
		case !existing.IsTerminal():
			return fmt.Errorf("%w: %s is %s", ErrDuplicate, item.ID, existing)
		default:
			if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, item.ID); err != nil {
				return fmt.Errorf("replace finished item: %w", err)
			}
		}

		query, args, err := sq.Insert("items").
			Columns("id", "kind", "document_id", "status", "item_json", "request_id", "created_at", "updated_at").
			Values(item.ID, item.Kind, item.DocumentID, item.Status, item.ItemJSON, sqlstore.NullableString(item.RequestID),
				sqlstore.FormatTime(now), sqlstore.FormatTime(now)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return tx.Commit()
	})
}

// Get fetches an item by id. Returns nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	query, args, err := sq.Select(itemColumns).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	builder := sq.Select(itemColumns).From("items").OrderBy("created_at DESC", "id")
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		builder = builder.Where(sq.Eq{"status": values})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes an item record. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	query, args, err := sq.Delete("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	return sqlstore.RetryOnBusy(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	})
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item           Item
		classification sql.NullString
		errorMessage   sql.NullString
		warningsJSON   sql.NullString
		requestID      sql.NullString
		createdRaw     string
		updatedRaw     string
		startedRaw     sql.NullString
		finishedRaw    sql.NullString
	)
	if err := scanner.Scan(&item.ID, &item.Kind, &item.DocumentID, &item.Status, &classification, &errorMessage,
		&warningsJSON, &item.ItemJSON, &requestID, &createdRaw, &updatedRaw, &startedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	item.Classification = classification.String
	item.ErrorMessage = errorMessage.String
	item.RequestID = requestID.String
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &item.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings for %s: %w", item.ID, err)
		}
	}
	if t, err := sqlstore.ParseTime(createdRaw); err == nil {
		item.CreatedAt = t
	}
	if t, err := sqlstore.ParseTime(updatedRaw); err == nil {
		item.UpdatedAt = t
	}
	item.StartedAt = parseOptionalTime(startedRaw)
	item.FinishedAt = parseOptionalTime(finishedRaw)
	return &item, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := sqlstore.ParseTime(raw.String)
	if err != nil {
		return nil
	}
	return &t
}
