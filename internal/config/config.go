package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains configuration for the submission and status HTTP surface.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// LLM contains the connection and admission settings for the completion service.
type LLM struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxAttempts       int    `toml:"max_attempts"`
	RetryBaseMillis   int    `toml:"retry_base_millis"`
	RetryMaxSeconds   int    `toml:"retry_max_seconds"`
	MaxConcurrency    int    `toml:"max_concurrency"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Embeddings contains the optional vector embedding provider used by the entity resolver.
type Embeddings struct {
	Enabled           bool   `toml:"enabled"`
	Endpoint          string `toml:"endpoint"`
	Model             string `toml:"model"`
	APIKey            string `toml:"api_key"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// Prompts locates the hot-reloadable prompt file. Built-in prompts are used
// for any phase the file does not define.
type Prompts struct {
	Path string `toml:"path"`
}

// Pipeline contains controller sizing and phase policy knobs.
type Pipeline struct {
	Workers                   int    `toml:"workers"`
	QueueCapacity             int    `toml:"queue_capacity"`
	DrainTimeoutSeconds       int    `toml:"drain_timeout_seconds"`
	WorkingLanguage           string `toml:"working_language"`
	MinTextLength             int    `toml:"min_text_length"`
	RelationFailureEscalation int    `toml:"relation_failure_escalation"`
}

// Resolver contains entity matching parameters.
type Resolver struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TextWeight          float64 `toml:"text_weight"`
	VectorWeight        float64 `toml:"vector_weight"`
	CandidateLimit      int     `toml:"candidate_limit"`
	CacheTTLSeconds     int     `toml:"cache_ttl_seconds"`
}

// Scoring contains the importance model settings.
type Scoring struct {
	ModelURL       string `toml:"model_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultScore   int    `toml:"default_score"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for newsgraph.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories (sqlite databases, daemon lock, logs)
//   - API: HTTP bind address and bearer token
//   - LLM: completion service connection, retries, and admission limits
//   - Embeddings: optional vector similarity provider
//   - Prompts: hot-reloadable prompt file
//   - Pipeline: worker pool, queue capacity, drain timeout, phase policies
//   - Resolver: entity similarity threshold and weighting
//   - Scoring: importance model endpoint and fallback score
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	API        API        `toml:"api"`
	LLM        LLM        `toml:"llm"`
	Embeddings Embeddings `toml:"embeddings"`
	Prompts    Prompts    `toml:"prompts"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Resolver   Resolver   `toml:"resolver"`
	Scoring    Scoring    `toml:"scoring"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("newsgraph.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the item status database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// KnowledgeDBPath returns the durable knowledge database location.
func (c *Config) KnowledgeDBPath() string {
	return filepath.Join(c.Paths.DataDir, "knowledge.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "newsgraphd.lock")
}

// APIBaseURL returns the HTTP base URL clients should use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.API.Bind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if strings.HasPrefix(bind, "0.0.0.0:") {
		bind = "127.0.0.1" + strings.TrimPrefix(bind, "0.0.0.0")
	}
	return "http://" + bind
}

// RequireLLM reports whether the completion service is configured well enough
// for the daemon to run the pipeline.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required. Set NEWSGRAPH_LLM_API_KEY or OPENROUTER_API_KEY, or edit %s (create with 'newsgraph config init')", defaultPath)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
