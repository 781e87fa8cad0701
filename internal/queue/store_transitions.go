package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsgraph/internal/sqlstore"
)

// Outcome is the final disposition recorded for an item.
type Outcome struct {
	Status         Status
	Classification string
	ErrorMessage   string
	Warnings       []string
}

// SetStatus moves an item to an in-flight status. The first transition out
// of queued stamps started_at.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("set status: unknown status %q", status)
	}
	now := sqlstore.FormatTime(time.Now())
	builder := sq.Update("items").
		Set("status", status).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})
	if status.IsProcessing() {
		builder = builder.Set("started_at", sq.Expr("COALESCE(started_at, ?)", now))
	}
	return s.exec(ctx, builder, "set status")
}

// Finish records the terminal status, failure classification and warnings.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("finish item: %q is not a terminal status", outcome.Status)
	}
	var warnings any
	if len(outcome.Warnings) > 0 {
		encoded, err := json.Marshal(outcome.Warnings)
		if err != nil {
			return fmt.Errorf("encode warnings: %w", err)
		}
		warnings = string(encoded)
	}
	now := sqlstore.FormatTime(time.Now())
	builder := sq.Update("items").
		Set("status", outcome.Status).
		Set("classification", sqlstore.NullableString(outcome.Classification)).
		Set("error_message", sqlstore.NullableString(outcome.ErrorMessage)).
		Set("warnings_json", warnings).
		Set("updated_at", now).
		Set("finished_at", now).
		Where(sq.Eq{"id": id})
	return s.exec(ctx, builder, "finish item")
}

// ResetStuckProcessing fails items left in an in-flight status by a crash.
// Queued items are left alone; the caller decides whether to replay them.
func (s *Store) ResetStuckProcessing(ctx context.Context, classification string) (int64, error) {
	now := sqlstore.FormatTime(time.Now())
	statuses := make([]string, 0, len(processingStatuses))
	for _, status := range processingStatuses {
		statuses = append(statuses, string(status))
	}
	query, args, err := sq.Update("items").
		Set("status", StatusFailed).
		Set("classification", classification).
		Set("error_message", InterruptedReason).
		Set("updated_at", now).
		Set("finished_at", now).
		Where(sq.Eq{"status": statuses}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var affected int64
	err = sqlstore.RetryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return affected, nil
}

func (s *Store) exec(ctx context.Context, builder sq.UpdateBuilder, op string) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	return sqlstore.RetryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return fmt.Errorf("%s: %w", op, execErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
		}
		return nil
	})
}
