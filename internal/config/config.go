package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	APIKey      string `envconfig:"API_KEY"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"pgvector"`
	QdrantAddr    string `envconfig:"QDRANT_ADDR" default:"localhost:6334"`
	Collection    string `envconfig:"COLLECTION" default:"docqa_chunks"`
	IndexLists    int    `envconfig:"INDEX_LISTS" default:"128"`
	IndexProbes   int    `envconfig:"INDEX_PROBES" default:"10"`

	EmbeddingProvider           string        `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel              string        `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions         int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingTimeout            time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	EmbeddingRPS                float64       `envconfig:"EMBEDDING_RPS" default:"0"`
	EmbeddingBatchSize          int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"5"`
	EmbeddingBatchDelay         time.Duration `envconfig:"EMBEDDING_BATCH_DELAY" default:"1s"`
	EmbeddingMaxAttempts        int           `envconfig:"EMBEDDING_MAX_ATTEMPTS" default:"3"`
	EmbeddingBackoff            time.Duration `envconfig:"EMBEDDING_BACKOFF" default:"1s"`
	EmbeddingGenerativeFallback bool          `envconfig:"EMBEDDING_GENERATIVE_FALLBACK" default:"false"`
	EmbeddingLocalFallback      bool          `envconfig:"EMBEDDING_LOCAL_FALLBACK" default:"true"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	ChatModel             string        `envconfig:"CHAT_MODEL"`
	GenerationTimeout     time.Duration `envconfig:"GENERATION_TIMEOUT" default:"90s"`
	GenerationTemperature float32       `envconfig:"GENERATION_TEMPERATURE" default:"0.2"`
	GenerationMaxTokens   int           `envconfig:"GENERATION_MAX_TOKENS" default:"512"`
	GenerationTopP        float32       `envconfig:"GENERATION_TOP_P" default:"1"`
	GenerationStop        []string      `envconfig:"GENERATION_STOP"`

	ChunkMaxChars     int `envconfig:"CHUNK_MAX_CHARS" default:"500"`
	ChunkOverlap      int `envconfig:"CHUNK_OVERLAP" default:"50"`
	TopK              int `envconfig:"TOP_K" default:"5"`
	ScanFallbackLimit int `envconfig:"SCAN_FALLBACK_LIMIT" default:"5"`

	// ReembedInterval of 0 disables the background re-embed worker.
	ReembedInterval    time.Duration `envconfig:"REEMBED_INTERVAL" default:"10m"`
	ReembedBatchSize   int           `envconfig:"REEMBED_BATCH_SIZE" default:"10"`
	ReembedMaxFailures int           `envconfig:"REEMBED_MAX_FAILURES" default:"3"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docqa-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCQA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case "pgvector":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the pgvector backend")
		}
	case "qdrant":
		if c.QdrantAddr == "" {
			return fmt.Errorf("QDRANT_ADDR is required for the qdrant backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("CHUNK_MAX_CHARS must be positive, got %d", c.ChunkMaxChars)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxChars {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_MAX_CHARS), got %d", c.ChunkOverlap)
	}
	if c.ReembedInterval < 0 {
		return fmt.Errorf("REEMBED_INTERVAL cannot be negative, got %s", c.ReembedInterval)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

// HasSentry reports whether error reporting is enabled.
func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
