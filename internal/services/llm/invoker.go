package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newsgraph/internal/logging"
	"newsgraph/internal/prompts"
	"newsgraph/internal/services"
)

// Invoker runs the prompt registered for a phase and returns the raw JSON
// payload produced by the model.
type Invoker interface {
	Invoke(ctx context.Context, phase string, vars map[string]any) (string, error)
}

// PromptResolver resolves a prompt template by phase name.
type PromptResolver interface {
	Resolve(phase string) (prompts.Prompt, error)
}

// Completer issues a single JSON completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// PromptClient binds a prompt store to a completion client.
type PromptClient struct {
	prompts PromptResolver
	client  Completer
	logger  *slog.Logger
}

// NewPromptClient constructs an Invoker.
func NewPromptClient(resolver PromptResolver, client Completer, logger *slog.Logger) *PromptClient {
	return &PromptClient{
		prompts: resolver,
		client:  client,
		logger:  logging.NewComponentLogger(logger, "llm"),
	}
}

// Invoke resolves and renders the phase prompt, then completes it. A missing
// or unrenderable prompt fails only this call with services.ErrPromptMissing;
// exhausted retries surface as services.ErrTransient.
func (p *PromptClient) Invoke(ctx context.Context, phase string, vars map[string]any) (string, error) {
	prompt, err := p.prompts.Resolve(phase)
	if err != nil {
		return "", err
	}
	system, user, err := prompt.Render(vars)
	if err != nil {
		return "", services.Wrap(services.ErrPromptMissing, "llm", phase, "render prompt", err)
	}
	started := time.Now()
	content, err := p.client.Complete(ctx, Request{Phase: phase, System: system, User: user})
	logger := logging.WithContext(ctx, p.logger)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "llm", phase, "completion aborted", err)
		}
		logger.Debug("llm completion failed",
			logging.String("phase", phase),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return "", services.Wrap(services.ErrTransient, "llm", phase, "completion failed", err)
	}
	logger.Debug("llm completion",
		logging.String("phase", phase),
		logging.String("prompt_source", prompt.Source),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("response_bytes", len(content)),
	)
	return content, nil
}
