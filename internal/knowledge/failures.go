package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/sqlstore"
)

// FailureRecord is a persisted hard failure with enough context to retry
// the item later.
type FailureRecord struct {
	ID             int64      `json:"id"`
	ItemID         string     `json:"item_id"`
	DocumentID     string     `json:"document_id,omitempty"`
	Classification string     `json:"classification"`
	ErrorMessage   string     `json:"error_message"`
	ItemJSON       string     `json:"item_json"`
	CleanedText    string     `json:"cleaned_text,omitempty"`
	DiagnosticJSON string     `json:"diagnostic_json,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	RetriedAt      *time.Time `json:"retried_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
}

const failureColumns = "id, item_id, document_id, classification, error_message, item_json, cleaned_text, diagnostic_json, created_at, retried_at, retry_count"

// RecordFailure stores a hard failure and returns its id.
func (s *Store) RecordFailure(ctx context.Context, rec FailureRecord) (int64, error) {
	if rec.ItemID == "" {
		return 0, errors.New("record failure: item id required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	query, args, err := sq.Insert("failures").
		Columns("item_id", "document_id", "classification", "error_message", "item_json", "cleaned_text", "diagnostic_json", "created_at").
		Values(rec.ItemID, sqlstore.NullableString(rec.DocumentID), rec.Classification, rec.ErrorMessage, rec.ItemJSON,
			sqlstore.NullableString(rec.CleanedText), sqlstore.NullableString(rec.DiagnosticJSON), sqlstore.FormatTime(created)).
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	err = sqlstore.RetryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		id, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}
	return id, nil
}

// ListFailures returns the newest failures first. A non-positive limit
// returns every record.
func (s *Store) ListFailures(ctx context.Context, limit int) ([]FailureRecord, error) {
	builder := sq.Select(failureColumns).From("failures").OrderBy("id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()
	var out []FailureRecord
	for rows.Next() {
		rec, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Failure fetches one failure record. Returns nil when absent.
func (s *Store) Failure(ctx context.Context, id int64) (*FailureRecord, error) {
	query, args, err := sq.Select(failureColumns).From("failures").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanFailure(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure: %w", err)
	}
	return rec, nil
}

// MarkRetried stamps a failure as resubmitted.
func (s *Store) MarkRetried(ctx context.Context, id int64) error {
	query, args, err := sq.Update("failures").
		Set("retried_at", sqlstore.FormatTime(time.Now())).
		Set("retry_count", sq.Expr("retry_count + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark failure retried: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark failure retried: no failure with id %d", id)
	}
	return nil
}

func scanFailure(scanner interface{ Scan(dest ...any) error }) (*FailureRecord, error) {
	var (
		rec        FailureRecord
		documentID sql.NullString
		cleaned    sql.NullString
		diagnostic sql.NullString
		createdRaw string
		retriedRaw sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.ItemID, &documentID, &rec.Classification, &rec.ErrorMessage, &rec.ItemJSON,
		&cleaned, &diagnostic, &createdRaw, &retriedRaw, &rec.RetryCount); err != nil {
		return nil, err
	}
	rec.DocumentID = documentID.String
	rec.CleanedText = cleaned.String
	rec.DiagnosticJSON = diagnostic.String
	if created, err := sqlstore.ParseTime(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if retriedRaw.Valid {
		if retried, err := sqlstore.ParseTime(retriedRaw.String); err == nil {
			rec.RetriedAt = &retried
		}
	}
	return &rec, nil
}
