package workflow

import (
	"context"
	"errors"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/services"
	"newsgraph/internal/stageexec"
)

func (m *Manager) processItem(ctx context.Context, workerID int, env envelope) {
	item := env.item
	ctx = withItemContext(ctx, item, env.requestID, workerID)
	logger := logging.WithContext(ctx, m.logger)

	m.mu.RLock()
	stages := m.stages
	m.mu.RUnlock()

	started := time.Now()
	work := content.NewWork(item)
	var (
		stageErr    error
		failedStage string
	)
	for _, stg := range stages {
		if err := ctx.Err(); err != nil {
			stageErr = services.Wrap(services.ErrInterrupted, stg.name, "run", "cancelled before stage", err)
			failedStage = stg.name
			break
		}
		stageErr = stageexec.Run(ctx, stageexec.Options{
			Logger:    m.logger,
			Store:     m.store,
			Handler:   stg.handler,
			StageName: stg.name,
			Status:    stg.status,
			Work:      work,
		})
		if stageErr != nil {
			failedStage = stg.name
			break
		}
		if work.Discard {
			break
		}
	}
	if stageErr != nil && ctx.Err() != nil && !errors.Is(stageErr, services.ErrInterrupted) {
		stageErr = services.Wrap(services.ErrInterrupted, failedStage, "run", "cancelled by shutdown", stageErr)
	}
	// Nothing from a failed or discarded item is persisted, so its temp ids
	// die with it.
	work.Arena.Close()

	result := work.Result(stageErr)
	m.finishItem(ctx, logger, work, result, failedStage, time.Since(started))
}
