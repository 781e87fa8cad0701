package workflow

import (
	"context"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/queue"
	"newsgraph/internal/stage"
)

// StageSet bundles the concrete phase handlers the manager orchestrates.
// Nil handlers are skipped.
type StageSet struct {
	Triage     stage.Handler
	Extraction stage.Handler
	Quotes     stage.Handler
	Linking    stage.Handler
	Scoring    stage.Handler
	Assembly   stage.Handler
}

type pipelineStage struct {
	name    string
	handler stage.Handler
	status  queue.Status
}

// envelope is what travels through the in-memory queue.
type envelope struct {
	item      *content.Item
	requestID string
}

// ResultListener is notified after each item reaches a final status.
type ResultListener func(ctx context.Context, result content.Result)

// DrainSummary reports what happened to work during Shutdown.
type DrainSummary struct {
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Discarded   int           `json:"discarded"`
	Interrupted int           `json:"interrupted"`
	Abandoned   int           `json:"abandoned"`
	TimedOut    bool          `json:"timed_out"`
	Duration    time.Duration `json:"duration"`
}

// PhaseErrors counts failures attributed to one phase.
type PhaseErrors struct {
	Hard int `json:"hard"`
	Soft int `json:"soft"`
}

// Health is the pipeline health surface.
type Health struct {
	Accepting     bool                   `json:"accepting"`
	Running       bool                   `json:"running"`
	QueueDepth    int                    `json:"queue_depth"`
	QueueCapacity int                    `json:"queue_capacity"`
	WorkersTotal  int                    `json:"workers_total"`
	WorkersBusy   int                    `json:"workers_busy"`
	Utilization   float64                `json:"utilization"`
	Totals        map[string]int         `json:"totals"`
	Interrupted   int                    `json:"interrupted"`
	PhaseErrors   map[string]PhaseErrors `json:"phase_errors"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
}
