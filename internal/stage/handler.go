package stage

import (
	"context"
	"log/slog"

	"newsgraph/internal/content"
)

// Handler describes the contract the workflow manager needs from each phase.
type Handler interface {
	Execute(context.Context, *content.Work) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by handlers that accept a per-item logger
// before Execute runs.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
