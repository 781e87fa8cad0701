package testsupport

import (
	"path/filepath"
	"testing"

	"newsgraph/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.MaxAttempts = 1
	cfgVal.Pipeline.Workers = 2
	cfgVal.Pipeline.QueueCapacity = 8
	cfgVal.Pipeline.DrainTimeoutSeconds = 5
	cfgVal.Pipeline.MinTextLength = 1
	cfgVal.Prompts.Path = filepath.Join(base, "prompts.yaml")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithQueueCapacity overrides the bounded queue capacity.
func WithQueueCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.QueueCapacity = n
	}
}

// WithWorkingLanguage overrides the pipeline working language.
func WithWorkingLanguage(code string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.WorkingLanguage = code
	}
}

// WithRelationEscalation sets the consecutive relation failure threshold.
func WithRelationEscalation(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RelationFailureEscalation = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
