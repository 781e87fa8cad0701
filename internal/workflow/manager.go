package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"newsgraph/internal/config"
	"newsgraph/internal/content"
	"newsgraph/internal/logging"
	"newsgraph/internal/queue"
)

// Manager coordinates item processing across a fixed worker pool.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	base      *slog.Logger
	logger    *slog.Logger
	workers   int
	capacity  int
	drain     time.Duration
	listeners []ResultListener

	mu        sync.RWMutex
	stages    []pipelineStage
	queue     chan envelope
	accepting bool
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	busy atomic.Int32

	statsMu     sync.Mutex
	totals      map[content.Status]int
	interrupted int
	abandoned   int
	phaseErrors map[string]*PhaseErrors
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithResultListener registers a callback invoked with each final result.
func WithResultListener(listener ResultListener) ManagerOption {
	return func(m *Manager) {
		if listener != nil {
			m.listeners = append(m.listeners, listener)
		}
	}
}

// WithDrainTimeout overrides pipeline.drain_timeout_seconds.
func WithDrainTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.drain = d
		}
	}
}

// NewManager constructs a workflow manager sized from cfg.Pipeline.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:         cfg,
		store:       store,
		base:        logger,
		logger:      logging.NewComponentLogger(logger, "workflow-manager"),
		workers:     max(cfg.Pipeline.Workers, 1),
		capacity:    max(cfg.Pipeline.QueueCapacity, 1),
		drain:       time.Duration(cfg.Pipeline.DrainTimeoutSeconds) * time.Second,
		totals:      make(map[content.Status]int),
		phaseErrors: make(map[string]*PhaseErrors),
	}
	if m.drain <= 0 {
		m.drain = 30 * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
