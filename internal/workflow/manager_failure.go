package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
)

// finishItem records the final status, updates counters and notifies
// listeners.
func (m *Manager) finishItem(ctx context.Context, logger *slog.Logger, work *content.Work, result content.Result, failedStage string, elapsed time.Duration) {
	outcome := queue.Outcome{
		Status:         queueStatus(result.Status),
		Classification: string(result.Classification),
		ErrorMessage:   result.Error,
		Warnings:       warningsFor(work.Annotations),
	}
	if result.Status == content.StatusDiscarded {
		outcome.ErrorMessage = work.Reason
	}
	// The run context may already be cancelled; the final status must land.
	if err := m.store.Finish(context.WithoutCancel(ctx), work.Item.ID, outcome); err != nil {
		logging.ErrorWithContext(logger, "failed to persist final status", "status_write_failed",
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String("status", string(outcome.Status)),
			logging.Error(err),
		)
	}
	m.recordOutcome(result, failedStage, work.Annotations)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "item_finished"),
		logging.String("status", string(result.Status)),
		logging.Int("facts", len(work.Facts)),
		logging.Int("entities", len(work.Entities)),
		logging.Int("warnings", len(outcome.Warnings)),
		logging.Duration("item_duration", elapsed),
	}
	switch result.Status {
	case content.StatusFailed:
		logging.ErrorWithContext(logger, "item failed", "item_failed", append(attrs,
			logging.String("classification", string(result.Classification)),
			logging.String("failed_stage", failedStage),
			logging.String("error_message", result.Error),
		)...)
	case content.StatusDiscarded:
		logger.Info("item discarded", logging.Args(append(attrs, logging.String("reason", work.Reason))...)...)
	default:
		logger.Info("item completed", logging.Args(attrs...)...)
	}

	for _, listener := range m.listeners {
		listener(ctx, result)
	}
}

func (m *Manager) recordOutcome(result content.Result, failedStage string, annotations []content.Annotation) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.totals[result.Status]++
	if result.Classification == services.ClassShutdownInterrupted {
		m.interrupted++
	}
	if result.Status == content.StatusFailed && failedStage != "" {
		m.phaseCounter(failedStage).Hard++
	}
	for _, a := range annotations {
		if a.Classification != services.ClassNone {
			m.phaseCounter(a.Phase).Soft++
		}
	}
}

func (m *Manager) phaseCounter(phase string) *PhaseErrors {
	counter, ok := m.phaseErrors[phase]
	if !ok {
		counter = &PhaseErrors{}
		m.phaseErrors[phase] = counter
	}
	return counter
}

func (m *Manager) recordAbandoned() {
	m.statsMu.Lock()
	m.abandoned++
	m.statsMu.Unlock()
}

type statsSnapshot struct {
	totals      map[content.Status]int
	interrupted int
	abandoned   int
}

func (m *Manager) snapshot() statsSnapshot {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	totals := make(map[content.Status]int, len(m.totals))
	for k, v := range m.totals {
		totals[k] = v
	}
	return statsSnapshot{totals: totals, interrupted: m.interrupted, abandoned: m.abandoned}
}

func queueStatus(status content.Status) queue.Status {
	switch status {
	case content.StatusFailed:
		return queue.StatusFailed
	case content.StatusDiscarded:
		return queue.StatusDiscarded
	default:
		return queue.StatusCompleted
	}
}

func warningsFor(annotations []content.Annotation) []string {
	if len(annotations) == 0 {
		return nil
	}
	out := make([]string, 0, len(annotations))
	for _, a := range annotations {
		if a.Classification != services.ClassNone {
			out = append(out, fmt.Sprintf("%s: %s: %s", a.Phase, a.Classification, a.Message))
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", a.Phase, a.Message))
	}
	return out
}
