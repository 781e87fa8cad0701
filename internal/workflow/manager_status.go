package workflow

import (
	"context"
	"fmt"

	"newsgraph/internal/content"
	"newsgraph/internal/queue"
	"newsgraph/internal/stage"
)

// Status returns the persisted status record for id, or nil when unknown.
func (m *Manager) Status(ctx context.Context, id string) (*queue.Item, error) {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load item status: %w", err)
	}
	return item, nil
}

// List returns status records filtered by statuses (all when empty).
func (m *Manager) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error) {
	return m.store.List(ctx, statuses...)
}

// Health reports queue depth, worker utilization and outcome counters.
func (m *Manager) Health() Health {
	m.mu.RLock()
	health := Health{
		Accepting:     m.accepting,
		Running:       m.running,
		QueueCapacity: m.capacity,
		WorkersTotal:  m.workers,
	}
	if m.queue != nil && m.running {
		health.QueueDepth = len(m.queue)
	}
	if !m.startedAt.IsZero() {
		started := m.startedAt
		health.StartedAt = &started
	}
	m.mu.RUnlock()

	health.WorkersBusy = int(m.busy.Load())
	if health.WorkersTotal > 0 {
		health.Utilization = float64(health.WorkersBusy) / float64(health.WorkersTotal)
	}

	m.statsMu.Lock()
	health.Totals = map[string]int{
		string(content.StatusSuccess):   m.totals[content.StatusSuccess],
		string(content.StatusFailed):    m.totals[content.StatusFailed],
		string(content.StatusDiscarded): m.totals[content.StatusDiscarded],
	}
	health.Interrupted = m.interrupted
	health.PhaseErrors = make(map[string]PhaseErrors, len(m.phaseErrors))
	for phase, counter := range m.phaseErrors {
		health.PhaseErrors[phase] = *counter
	}
	m.statsMu.Unlock()
	return health
}

// StageHealth runs each configured handler's health check.
func (m *Manager) StageHealth(ctx context.Context) []stage.Health {
	m.mu.RLock()
	stages := append([]pipelineStage(nil), m.stages...)
	m.mu.RUnlock()

	out := make([]stage.Health, 0, len(stages))
	for _, stg := range stages {
		out = append(out, stg.handler.HealthCheck(ctx))
	}
	return out
}
