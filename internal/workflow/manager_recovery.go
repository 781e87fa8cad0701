package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
)

// resetStuckItems fails items a crashed run left in a processing status.
func (m *Manager) resetStuckItems(ctx context.Context) error {
	reset, err := m.store.ResetStuckProcessing(ctx, string(services.ClassShutdownInterrupted))
	if err != nil {
		return fmt.Errorf("reset stuck items: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(m.logger, "failed items left in processing by previous run", "stuck_items_reset",
			logging.Int64("count", reset),
			logging.String(logging.FieldErrorHint, "resubmit the affected items"),
			logging.String(logging.FieldImpact, "items marked failed with shutdown_interrupted"),
		)
	}
	return nil
}

// replayRetryInterval paces re-offers of replayed items while the queue is
// full.
const replayRetryInterval = 50 * time.Millisecond

// replayQueued hands items still queued from a previous run back to the
// workers, oldest first. Items that do not fit are re-offered from runCtx
// as workers free capacity.
func (m *Manager) replayQueued(ctx, runCtx context.Context) {
	items, err := m.store.List(ctx, queue.StatusQueued)
	if err != nil {
		m.logger.Warn("could not list queued items for replay",
			logging.Error(err),
			logging.String(logging.FieldEventType, "replay_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	var pending []envelope
	replayed, skipped := 0, 0
	for i := len(items) - 1; i >= 0; i-- {
		record := items[i]
		var item content.Item
		if err := json.Unmarshal([]byte(record.ItemJSON), &item); err != nil || item.ID == "" {
			skipped++
			_ = m.store.Finish(ctx, record.ID, queue.Outcome{
				Status:         queue.StatusFailed,
				Classification: string(services.ClassValidation),
				ErrorMessage:   "stored item could not be decoded",
			})
			continue
		}
		env := envelope{item: &item, requestID: record.RequestID}
		if len(pending) > 0 {
			pending = append(pending, env)
			continue
		}
		if err := m.offer(env); err != nil {
			if !errors.Is(err, services.ErrBackpressure) {
				return
			}
			pending = append(pending, env)
			continue
		}
		replayed++
	}
	if replayed > 0 || skipped > 0 || len(pending) > 0 {
		m.logger.Info("replayed queued items",
			logging.String(logging.FieldEventType, "queue_replay"),
			logging.Int("replayed", replayed),
			logging.Int("skipped", skipped),
			logging.Int("deferred", len(pending)),
		)
	}
	if len(pending) > 0 {
		go m.replayDeferred(runCtx, pending)
	}
}

// replayDeferred keeps offering pending in order until each is accepted or
// the workflow stops accepting. Items it cannot hand over stay queued in the
// status store for the next start.
func (m *Manager) replayDeferred(ctx context.Context, pending []envelope) {
	ticker := time.NewTicker(replayRetryInterval)
	defer ticker.Stop()
	for len(pending) > 0 {
		err := m.offer(pending[0])
		switch {
		case err == nil:
			pending = pending[1:]
			continue
		case !errors.Is(err, services.ErrBackpressure):
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	m.logger.Info("deferred replay complete",
		logging.String(logging.FieldEventType, "queue_replay_complete"),
	)
}
