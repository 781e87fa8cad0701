package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/services"
	"newsgraph/internal/stage"
)

// StatusWriter records an item's in-flight status.
type StatusWriter interface {
	SetStatus(ctx context.Context, id string, status queue.Status) error
}

// Options controls one stage execution.
type Options struct {
	Logger    *slog.Logger
	Store     StatusWriter
	Handler   stage.Handler
	StageName string
	Status    queue.Status
	Work      *content.Work
}

// Run marks the item as being in the stage, executes the handler and logs
// the outcome. The handler error is returned untouched so the caller can
// classify it; a status write failure is an internal error.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return services.Wrap(services.ErrConfiguration, opts.StageName, "run", "stage handler unavailable", nil)
	}
	if opts.Work == nil || opts.Work.Item == nil {
		return fmt.Errorf("stage %s: work item is required", opts.StageName)
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	if opts.Store != nil && opts.Status != "" {
		if err := opts.Store.SetStatus(stageCtx, opts.Work.Item.ID, opts.Status); err != nil {
			return fmt.Errorf("persist %s transition: %w", opts.Status, err)
		}
	}

	started := time.Now()
	stageLogger.Debug("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Status)),
	)

	annotationsBefore := len(opts.Work.Annotations)
	if err := opts.Handler.Execute(stageCtx, opts.Work); err != nil {
		class := services.Classify(err)
		attrs := []logging.Attr{
			logging.String("classification", string(class)),
			logging.Duration("stage_duration", time.Since(started)),
			logging.Error(err),
		}
		if errors.Is(err, context.Canceled) || class == services.ClassShutdownInterrupted {
			stageLogger.Info("stage interrupted", logging.Args(append(attrs, logging.String(logging.FieldEventType, "stage_interrupted"))...)...)
			return err
		}
		logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
			append(attrs, logging.String(logging.FieldErrorHint, hintFor(class)))...)
		return err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("annotations", len(opts.Work.Annotations)-annotationsBefore),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}

func hintFor(class services.Classification) string {
	switch class {
	case services.ClassTransient:
		return "check llm endpoint availability and rate limits"
	case services.ClassPromptUnavailable:
		return "run newsgraph prompts check"
	case services.ClassPersistence:
		return "inspect newsgraph failures list"
	case services.ClassExtractionParse, services.ClassMalformedOutput:
		return "inspect the prompt output for this phase"
	default:
		return "check logs for details"
	}
}
