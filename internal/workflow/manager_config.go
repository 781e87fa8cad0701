package workflow

import (
	"newsgraph/internal/queue"
	"newsgraph/internal/stage"
)

// ConfigureStages registers the concrete phase handlers in pipeline order.
func (m *Manager) ConfigureStages(set StageSet) {
	candidates := []pipelineStage{
		{name: "triage", handler: set.Triage, status: queue.StatusPhase1},
		{name: "extraction", handler: set.Extraction, status: queue.StatusPhase2},
		{name: "quotes", handler: set.Quotes, status: queue.StatusPhase3},
		{name: "linking", handler: set.Linking, status: queue.StatusPhase4},
		{name: "scoring", handler: set.Scoring, status: queue.StatusPhase45},
		{name: "assembly", handler: set.Assembly, status: queue.StatusPhase5},
	}
	stages := make([]pipelineStage, 0, len(candidates))
	for _, stg := range candidates {
		if stg.handler == nil {
			continue
		}
		if aware, ok := stg.handler.(stage.LoggerAware); ok {
			aware.SetLogger(m.base)
		}
		stages = append(stages, stg)
	}

	m.mu.Lock()
	m.stages = stages
	m.mu.Unlock()
}
