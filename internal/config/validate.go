package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateEmbeddings(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if err := ensurePositiveMap(map[string]int{
		"llm.timeout_seconds":   c.LLM.TimeoutSeconds,
		"llm.max_attempts":      c.LLM.MaxAttempts,
		"llm.retry_max_seconds": c.LLM.RetryMaxSeconds,
		"llm.max_concurrency":   c.LLM.MaxConcurrency,
	}); err != nil {
		return err
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.New("llm.requests_per_minute must be >= 0")
	}
	return nil
}

func (c *Config) validateEmbeddings() error {
	if !c.Embeddings.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Embeddings.Endpoint) == "" {
		return errors.New("embeddings.endpoint must be set when embeddings.enabled is true")
	}
	if strings.TrimSpace(c.Embeddings.Model) == "" {
		return errors.New("embeddings.model must be set when embeddings.enabled is true")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":               c.Pipeline.Workers,
		"pipeline.queue_capacity":        c.Pipeline.QueueCapacity,
		"pipeline.drain_timeout_seconds": c.Pipeline.DrainTimeoutSeconds,
	}); err != nil {
		return err
	}
	if len(c.Pipeline.WorkingLanguage) != 2 {
		return errors.New("pipeline.working_language must be a two-letter ISO 639-1 code")
	}
	return nil
}

func (c *Config) validateResolver() error {
	if c.Resolver.SimilarityThreshold <= 0 || c.Resolver.SimilarityThreshold > 1 {
		return errors.New("resolver.similarity_threshold must be within (0, 1]")
	}
	if c.Resolver.TextWeight < 0 || c.Resolver.VectorWeight < 0 {
		return errors.New("resolver.text_weight and resolver.vector_weight must be >= 0")
	}
	if c.Resolver.TextWeight == 0 && c.Resolver.VectorWeight == 0 {
		return errors.New("resolver.text_weight and resolver.vector_weight cannot both be zero")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.DefaultScore < 1 || c.Scoring.DefaultScore > 10 {
		return errors.New("scoring.default_score must be between 1 and 10")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
