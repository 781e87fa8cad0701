package workflow

import (
	"context"
	"errors"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
)

// Start recovers state left by a previous run and launches the workers.
// Work runs on a context detached from ctx's cancellation; Shutdown decides
// when in-flight items are cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	stages := append([]pipelineStage(nil), m.stages...)
	m.mu.Unlock()

	if err := m.resetStuckItems(ctx); err != nil {
		return err
	}
	m.runPreflightChecks(ctx, stages)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	queueCh := make(chan envelope, m.capacity)

	m.mu.Lock()
	m.queue = queueCh
	m.cancel = cancel
	m.running = true
	m.accepting = true
	m.startedAt = time.Now().UTC()
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 1; i <= m.workers; i++ {
		go m.runWorker(runCtx, i, queueCh)
	}
	m.replayQueued(ctx, runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", m.workers),
		logging.Int("queue_capacity", m.capacity),
		logging.Int("stages", len(stages)),
	)
	return nil
}

func (m *Manager) runWorker(ctx context.Context, id int, queueCh <-chan envelope) {
	defer m.wg.Done()
	for env := range queueCh {
		if ctx.Err() != nil {
			// Left as queued in the status store for the next start.
			m.recordAbandoned()
			continue
		}
		m.busy.Add(1)
		m.processItem(ctx, id, env)
		m.busy.Add(-1)
	}
}

// Shutdown stops intake and drains. Items still running when the drain
// timeout (or ctx) expires are cancelled and recorded as interrupted;
// unstarted items stay queued.
func (m *Manager) Shutdown(ctx context.Context) DrainSummary {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return DrainSummary{}
	}
	m.accepting = false
	m.running = false
	close(m.queue)
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	before := m.snapshot()
	started := time.Now()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timedOut := false
	timer := time.NewTimer(m.drain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}
	cancel()
	<-done

	after := m.snapshot()
	summary := DrainSummary{
		Completed:   after.totals[content.StatusSuccess] - before.totals[content.StatusSuccess],
		Failed:      after.totals[content.StatusFailed] - before.totals[content.StatusFailed],
		Discarded:   after.totals[content.StatusDiscarded] - before.totals[content.StatusDiscarded],
		Interrupted: after.interrupted - before.interrupted,
		Abandoned:   after.abandoned - before.abandoned,
		TimedOut:    timedOut,
		Duration:    time.Since(started),
	}
	m.logger.Info("workflow drained",
		logging.String(logging.FieldEventType, "workflow_drained"),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("discarded", summary.Discarded),
		logging.Int("interrupted", summary.Interrupted),
		logging.Int("abandoned", summary.Abandoned),
		logging.Bool("timed_out", summary.TimedOut),
		logging.Duration("drain_duration", summary.Duration),
	)
	return summary
}
