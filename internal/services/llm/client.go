package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"newsgraph/internal/logging"
)

const (
	defaultEndpoint       = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout    = 15 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultMaxConcurrency = 4
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Request is one JSON completion. Phase names the pipeline phase issuing it
// and labels retry logs and returned errors.
type Request struct {
	Phase  string
	System string
	User   string
}

// Client talks to an OpenAI-compatible chat completion endpoint. Requests
// from every worker share one admission gate: a concurrency cap plus an
// optional per-minute rate.
type Client struct {
	cfg     Config
	http    *http.Client
	backoff backoff
	wait    func(context.Context, time.Duration) error
	logger  *slog.Logger

	slots    int64
	gate     *semaphore.Weighted
	limiter  *rate.Limiter
	inFlight atomic.Int64
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt budget (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.backoff.attempts = attempts
	}
}

// WithRetryBackoff sets the first retry delay and the cap it doubles up to.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.base = baseDelay
		c.backoff.max = maxDelay
	}
}

// WithConcurrencyLimit caps simultaneous outstanding requests (defaults to 4).
func WithConcurrencyLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.slots = int64(limit)
		}
	}
}

// WithRequestsPerMinute throttles request issuance. Zero disables throttling.
func WithRequestsPerMinute(rpm int) Option {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
}

// WithSleeper replaces the retry wait, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		if sleeper == nil {
			return
		}
		c.wait = func(ctx context.Context, d time.Duration) error {
			sleeper(d)
			return ctx.Err()
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		http:    &http.Client{Timeout: timeout},
		backoff: backoff{attempts: defaultRetryAttempts, base: defaultRetryBaseDelay, max: defaultRetryMaxDelay},
		wait:    sleepContext,
		slots:   defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultEndpoint
	}
	if c.backoff.attempts <= 0 {
		c.backoff.attempts = 1
	}
	if c.backoff.base < 0 {
		c.backoff.base = 0
	}
	if c.backoff.max <= 0 {
		c.backoff.max = defaultRetryMaxDelay
	}
	c.logger = logging.NewComponentLogger(c.logger, "llm-client")
	c.gate = semaphore.NewWeighted(c.slots)
	return c
}

// Complete sends req as a JSON-mode chat completion and returns the reply
// content. Throttling, 5xx, timeouts and empty replies are retried with
// backoff; once the attempt budget is spent the last failure is returned
// wrapped with the attempt count.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	phase := strings.TrimSpace(req.Phase)
	if phase == "" {
		phase = "complete"
	}
	op := "llm " + phase
	system, user := strings.TrimSpace(req.System), strings.TrimSpace(req.User)
	switch {
	case system == "":
		return "", fmt.Errorf("%s: system prompt required", op)
	case user == "":
		return "", fmt.Errorf("%s: user prompt required", op)
	case c.cfg.APIKey == "":
		return "", fmt.Errorf("%s: api key required", op)
	}
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	attempts := c.backoff.attempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.admit(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if attempt == attempts {
			break
		}
		delay := c.backoff.delay(attempt, err)
		logging.WithContext(ctx, c.logger).Warn("llm attempt failed; retrying",
			logging.String(logging.FieldEventType, "llm_retry"),
			logging.String("phase", phase),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.wait(ctx, delay); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Complete(ctx, Request{
		Phase:  "health",
		System: "You must respond with JSON only.",
		User:   `Respond with {"ok":true}`,
	})
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &reply); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !reply.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

// admit waits for a slot and a rate token, then issues one request. The slot
// is released before any retry wait.
func (c *Client) admit(ctx context.Context, body chatRequest) (string, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for slot: %w", err)
	}
	defer c.gate.Release(1)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	return c.send(ctx, body)
}

// InFlight reports the number of requests currently on the wire.
func (c *Client) InFlight() int {
	return int(c.inFlight.Load())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
