package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsgraph/internal/assembly"
	"newsgraph/internal/config"
	"newsgraph/internal/daemon"
	"newsgraph/internal/extraction"
	"newsgraph/internal/knowledge"
	"newsgraph/internal/linking"
	"newsgraph/internal/prompts"
	"newsgraph/internal/queue"
	"newsgraph/internal/quotes"
	"newsgraph/internal/resolver"
	"newsgraph/internal/scoring"
	"newsgraph/internal/services/embed"
	"newsgraph/internal/services/llm"
	"newsgraph/internal/similarity"
	"newsgraph/internal/triage"
	"newsgraph/internal/workflow"
)

// Runtime holds every long-lived component of a daemon process.
type Runtime struct {
	Daemon    *daemon.Daemon
	Workflow  *workflow.Manager
	Queue     *queue.Store
	Knowledge *knowledge.Store
	Prompts   *prompts.Store
	LLM       *llm.Client
	Resolver  *resolver.Resolver
}

// Build opens the stores and wires the phases, the controller and the daemon.
// Nothing is started.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...workflow.ManagerOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	rt := &Runtime{}
	var err error
	if rt.Queue, err = queue.Open(cfg); err != nil {
		return nil, fmt.Errorf("open status store: %w", err)
	}
	if rt.Knowledge, err = knowledge.Open(ctx, cfg.KnowledgeDBPath()); err != nil {
		rt.Close()
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	if rt.Prompts, err = prompts.NewStore(cfg.Prompts.Path, logger); err != nil {
		rt.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	rt.LLM = llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	},
		llm.WithRetryMaxAttempts(cfg.LLM.MaxAttempts),
		llm.WithRetryBackoff(time.Duration(cfg.LLM.RetryBaseMillis)*time.Millisecond, time.Duration(cfg.LLM.RetryMaxSeconds)*time.Second),
		llm.WithConcurrencyLimit(cfg.LLM.MaxConcurrency),
		llm.WithRequestsPerMinute(cfg.LLM.RequestsPerMinute),
		llm.WithLogger(logger),
	)
	invoker := llm.NewPromptClient(rt.Prompts, rt.LLM, logger)

	var embedder embed.Embedder
	if cfg.Embeddings.Enabled {
		embedder = embed.NewClient(embed.Config{
			Endpoint:          cfg.Embeddings.Endpoint,
			Model:             cfg.Embeddings.Model,
			APIKey:            cfg.Embeddings.APIKey,
			TimeoutSeconds:    cfg.Embeddings.TimeoutSeconds,
			RequestsPerMinute: cfg.Embeddings.RequestsPerMinute,
		})
	}
	var model scoring.Model
	if cfg.Scoring.ModelURL != "" {
		model = scoring.NewHTTPModel(cfg.Scoring.ModelURL, cfg.Scoring.APIKey, time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second)
	}

	rt.Resolver = resolver.New(rt.Knowledge, resolver.Options{
		Threshold:      cfg.Resolver.SimilarityThreshold,
		Weights:        similarity.Weights{Text: cfg.Resolver.TextWeight, Vector: cfg.Resolver.VectorWeight},
		CandidateLimit: cfg.Resolver.CandidateLimit,
		TTL:            time.Duration(cfg.Resolver.CacheTTLSeconds) * time.Second,
	}, logger)

	rt.Workflow = workflow.NewManager(cfg, rt.Queue, logger, opts...)
	rt.Workflow.ConfigureStages(workflow.StageSet{
		Triage: triage.New(invoker, triage.Config{
			WorkingLanguage: cfg.Pipeline.WorkingLanguage,
			MinTextLength:   cfg.Pipeline.MinTextLength,
		}, logger),
		Extraction: extraction.New(invoker, logger),
		Quotes:     quotes.New(invoker, logger),
		Linking: linking.New(invoker, rt.Resolver, embedder, linking.Config{
			RelationEscalation: cfg.Pipeline.RelationFailureEscalation,
		}, logger),
		Scoring:  scoring.New(rt.Knowledge, model, cfg.Scoring.DefaultScore, logger),
		Assembly: assembly.New(rt.Knowledge, rt.Resolver, logger),
	})

	rt.Daemon, err = daemon.New(cfg, daemon.Dependencies{
		Queue:     rt.Queue,
		Knowledge: rt.Knowledge,
		Workflow:  rt.Workflow,
		Services:  map[string]daemon.HealthChecker{"llm": rt.LLM},
	}, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return rt, nil
}

// Close releases the stores. The daemon must be stopped first.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Queue != nil {
		errs = append(errs, rt.Queue.Close())
	}
	if rt.Knowledge != nil {
		errs = append(errs, rt.Knowledge.Close())
	}
	return errors.Join(errs...)
}
