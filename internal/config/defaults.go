package config

const (
	defaultConfigPath                = "~/.config/newsgraph/config.toml"
	defaultDataDir                   = "~/.local/share/newsgraph"
	defaultLogDir                    = "~/.local/share/newsgraph/logs"
	defaultAPIBind                   = "127.0.0.1:7590"
	defaultLLMBaseURL                = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                  = "google/gemini-3-flash-preview"
	defaultLLMReferer                = "https://github.com/newsgraph/newsgraph"
	defaultLLMTitle                  = "newsgraph"
	defaultLLMTimeoutSeconds         = 60
	defaultLLMMaxAttempts            = 4
	defaultLLMRetryBaseMillis        = 1000
	defaultLLMRetryMaxSeconds        = 10
	defaultLLMMaxConcurrency         = 4
	defaultEmbeddingsEndpoint        = "https://openrouter.ai/api/v1/embeddings"
	defaultEmbeddingsModel           = "openai/text-embedding-3-small"
	defaultEmbeddingsTimeoutSeconds  = 30
	defaultPipelineWorkers           = 4
	defaultPipelineQueueCapacity     = 256
	defaultPipelineDrainSeconds      = 60
	defaultWorkingLanguage           = "es"
	defaultMinTextLength             = 40
	defaultSimilarityThreshold       = 0.85
	defaultTextWeight                = 0.6
	defaultVectorWeight              = 0.4
	defaultCandidateLimit            = 200
	defaultCacheTTLSeconds           = 900
	defaultScoringTimeoutSeconds     = 10
	defaultImportanceScore           = 5
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultRelationFailureEscalation = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:         defaultLLMBaseURL,
			Model:           defaultLLMModel,
			Referer:         defaultLLMReferer,
			Title:           defaultLLMTitle,
			TimeoutSeconds:  defaultLLMTimeoutSeconds,
			MaxAttempts:     defaultLLMMaxAttempts,
			RetryBaseMillis: defaultLLMRetryBaseMillis,
			RetryMaxSeconds: defaultLLMRetryMaxSeconds,
			MaxConcurrency:  defaultLLMMaxConcurrency,
		},
		Embeddings: Embeddings{
			Endpoint:       defaultEmbeddingsEndpoint,
			Model:          defaultEmbeddingsModel,
			TimeoutSeconds: defaultEmbeddingsTimeoutSeconds,
		},
		Pipeline: Pipeline{
			Workers:                   defaultPipelineWorkers,
			QueueCapacity:             defaultPipelineQueueCapacity,
			DrainTimeoutSeconds:       defaultPipelineDrainSeconds,
			WorkingLanguage:           defaultWorkingLanguage,
			MinTextLength:             defaultMinTextLength,
			RelationFailureEscalation: defaultRelationFailureEscalation,
		},
		Resolver: Resolver{
			SimilarityThreshold: defaultSimilarityThreshold,
			TextWeight:          defaultTextWeight,
			VectorWeight:        defaultVectorWeight,
			CandidateLimit:      defaultCandidateLimit,
			CacheTTLSeconds:     defaultCacheTTLSeconds,
		},
		Scoring: Scoring{
			TimeoutSeconds: defaultScoringTimeoutSeconds,
			DefaultScore:   defaultImportanceScore,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
