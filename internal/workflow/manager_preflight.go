package workflow

import (
	"context"

	"newsgraph/internal/logging"
)

// runPreflightChecks logs stages that report themselves unready. Startup is
// not blocked.
func (m *Manager) runPreflightChecks(ctx context.Context, stages []pipelineStage) {
	for _, stg := range stages {
		health := stg.handler.HealthCheck(ctx)
		if health.Ready {
			continue
		}
		logging.WarnWithContext(m.logger, "stage not ready", "preflight_failed",
			logging.String(logging.FieldStage, stg.name),
			logging.String("detail", health.Detail),
			logging.String(logging.FieldErrorHint, "check configuration for the stage"),
			logging.String(logging.FieldImpact, "items may fail at this stage"),
		)
	}
}
