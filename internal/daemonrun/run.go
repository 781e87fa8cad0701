package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"newsgraph/internal/config"
	"newsgraph/internal/logging"
)

// healthLogInterval paces the periodic pipeline health log line.
const healthLogInterval = time.Minute

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the newsgraph daemon and blocks until SIGINT/SIGTERM or ctx
// cancellation, then drains the pipeline.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireLLM(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("newsgraph-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update newsgraph.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "newsgraphd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logConfigSnapshot(logger, cfg)

	rt, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	if err := rt.Daemon.Start(signalCtx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logHealth(groupCtx, rt, logger, healthLogInterval)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("newsgraph daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		summary := rt.Daemon.Stop(context.WithoutCancel(groupCtx))
		if summary.TimedOut {
			logging.WarnWithContext(logger, "drain timed out", "drain_timeout",
				logging.Int("interrupted", summary.Interrupted),
				logging.Int("abandoned", summary.Abandoned),
				logging.String(logging.FieldErrorHint, "raise pipeline.drain_timeout_seconds"),
				logging.String(logging.FieldImpact, "interrupted items are failed with shutdown_interrupted"),
			)
		}
		return nil
	})
	return group.Wait()
}

func logHealth(ctx context.Context, rt *Runtime, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := rt.Workflow.Health()
			logger.Info("pipeline health",
				logging.String(logging.FieldEventType, "pipeline_health"),
				logging.Int("queue_depth", health.QueueDepth),
				logging.Int("workers_busy", health.WorkersBusy),
				logging.Float64("utilization", health.Utilization),
				logging.Int("completed", health.Totals["success"]),
				logging.Int("failed", health.Totals["failed"]),
				logging.Int("discarded", health.Totals["discarded"]),
				logging.Int("resolver_cache", rt.Resolver.Len()),
			)
		}
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "newsgraph.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_token_set", cfg.API.Token != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Int("llm_max_concurrency", cfg.LLM.MaxConcurrency),
		logging.Bool("embeddings_enabled", cfg.Embeddings.Enabled),
		logging.Bool("scoring_model_remote", cfg.Scoring.ModelURL != ""),
		logging.Int("workers", cfg.Pipeline.Workers),
		logging.Int("queue_capacity", cfg.Pipeline.QueueCapacity),
		logging.String("working_language", cfg.Pipeline.WorkingLanguage),
		logging.String("prompts_path", cfg.Prompts.Path),
	)
}
