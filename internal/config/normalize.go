package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLLM()
	c.normalizeEmbeddings()
	if err := c.normalizePrompts(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeResolver()
	c.normalizeScoring()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("NEWSGRAPH_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("NEWSGRAPH_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = defaultLLMMaxAttempts
	}
	if c.LLM.RetryBaseMillis < 0 {
		c.LLM.RetryBaseMillis = defaultLLMRetryBaseMillis
	}
	if c.LLM.RetryMaxSeconds <= 0 {
		c.LLM.RetryMaxSeconds = defaultLLMRetryMaxSeconds
	}
	if c.LLM.MaxConcurrency <= 0 {
		c.LLM.MaxConcurrency = defaultLLMMaxConcurrency
	}
	if c.LLM.RequestsPerMinute < 0 {
		c.LLM.RequestsPerMinute = 0
	}
}

func (c *Config) normalizeEmbeddings() {
	c.Embeddings.Endpoint = strings.TrimSpace(c.Embeddings.Endpoint)
	if c.Embeddings.Endpoint == "" {
		c.Embeddings.Endpoint = defaultEmbeddingsEndpoint
	}
	c.Embeddings.Model = strings.TrimSpace(c.Embeddings.Model)
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = defaultEmbeddingsModel
	}
	c.Embeddings.APIKey = strings.TrimSpace(c.Embeddings.APIKey)
	if c.Embeddings.APIKey == "" {
		if value, ok := os.LookupEnv("NEWSGRAPH_EMBEDDINGS_API_KEY"); ok {
			c.Embeddings.APIKey = strings.TrimSpace(value)
		} else {
			c.Embeddings.APIKey = c.LLM.APIKey
		}
	}
	if c.Embeddings.TimeoutSeconds <= 0 {
		c.Embeddings.TimeoutSeconds = defaultEmbeddingsTimeoutSeconds
	}
}

func (c *Config) normalizePrompts() error {
	c.Prompts.Path = strings.TrimSpace(c.Prompts.Path)
	if c.Prompts.Path == "" {
		return nil
	}
	expanded, err := expandPath(c.Prompts.Path)
	if err != nil {
		return fmt.Errorf("prompts.path: %w", err)
	}
	c.Prompts.Path = expanded
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.WorkingLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.WorkingLanguage))
	if c.Pipeline.WorkingLanguage == "" {
		c.Pipeline.WorkingLanguage = defaultWorkingLanguage
	}
	if c.Pipeline.MinTextLength < 0 {
		c.Pipeline.MinTextLength = 0
	}
	if c.Pipeline.RelationFailureEscalation < 0 {
		c.Pipeline.RelationFailureEscalation = 0
	}
}

func (c *Config) normalizeResolver() {
	if c.Resolver.CandidateLimit <= 0 {
		c.Resolver.CandidateLimit = defaultCandidateLimit
	}
	if c.Resolver.CacheTTLSeconds < 0 {
		c.Resolver.CacheTTLSeconds = 0
	}
}

func (c *Config) normalizeScoring() {
	c.Scoring.ModelURL = strings.TrimSpace(c.Scoring.ModelURL)
	c.Scoring.APIKey = strings.TrimSpace(c.Scoring.APIKey)
	if c.Scoring.APIKey == "" {
		if value, ok := os.LookupEnv("NEWSGRAPH_SCORING_API_KEY"); ok {
			c.Scoring.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Scoring.TimeoutSeconds <= 0 {
		c.Scoring.TimeoutSeconds = defaultScoringTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
