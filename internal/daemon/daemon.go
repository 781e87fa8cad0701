package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gofrs/flock"

	"newsgraph/internal/config"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
	"newsgraph/internal/workflow"
)

// HealthChecker reports the reachability of an external service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators a daemon coordinates.
type Dependencies struct {
	Queue     *queue.Store
	Knowledge *knowledge.Store
	Workflow  *workflow.Manager
	// Services are probed by the health endpoint, keyed by display name.
	Services map[string]HealthChecker
}

// Daemon coordinates the pipeline and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     *queue.Store
	knowledge *knowledge.Store
	workflow  *workflow.Manager
	services  map[string]HealthChecker

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Queue == nil || deps.Knowledge == nil || deps.Workflow == nil {
		return nil, errors.New("daemon requires config, queue store, knowledge store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		queue:     deps.Queue,
		knowledge: deps.Knowledge,
		workflow:  deps.Workflow,
		services:  deps.Services,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the workflow manager and opens the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another newsgraph daemon instance is already running (lock %s)", d.lockPath)
	}

	if err := d.workflow.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(); err != nil {
		d.workflow.Shutdown(ctx)
		_ = d.lock.Unlock()
		return err
	}

	d.running = true
	d.logger.Info("newsgraph daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.address()),
	)
	return nil
}

// Stop closes the API, drains the workflow and releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) workflow.DrainSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return workflow.DrainSummary{}
	}

	d.api.stop(ctx)
	summary := d.workflow.Shutdown(ctx)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running = false
	d.logger.Info("newsgraph daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	return summary
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// LockPath returns the single-instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// APIAddress returns the bound listener address, empty when the API is off.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}
