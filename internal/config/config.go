package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPinecone = "pinecone"
	BackendPgvector = "pgvector"
	// BackendMemory keeps vectors in process. Intended for local runs.
	BackendMemory = "memory"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	GoogleAPIKey        string `envconfig:"GOOGLE_API_KEY" required:"true"`
	PineconeAPIKey      string `envconfig:"PINECONE_API_KEY" required:"true"`
	PineconeEnvironment string `envconfig:"PINECONE_ENVIRONMENT" required:"true"`
	BearerToken         string `envconfig:"BEARER_TOKEN" required:"true"`
	DatabaseURL         string `envconfig:"DATABASE_URL" required:"true"`

	IndexBackend         string `envconfig:"INDEX_BACKEND" default:"pinecone"`
	IndexName            string `envconfig:"INDEX_NAME" default:"hackathon-index"`
	PineconeCloud        string `envconfig:"PINECONE_CLOUD" default:"aws"`
	PineconeAPIURL       string `envconfig:"PINECONE_API_URL" default:"https://api.pinecone.io"`
	NamespacePerDocument bool   `envconfig:"NAMESPACE_PER_DOCUMENT" default:"false"`

	// PINECONE_ENVIRONMENT is a legacy pod-era value ("gcp-starter",
	// "us-east-1-aws") and is never sent. Serverless creation uses this.
	PineconeRegion string `envconfig:"PINECONE_REGION" default:"us-east-1"`

	GeminiBaseURL       string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta/openai"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`

	// Zero keeps the historical behaviour: no deadline on outbound calls.
	OutboundTimeout        time.Duration `envconfig:"OUTBOUND_TIMEOUT" default:"0"`
	MaxConcurrentQuestions int           `envconfig:"MAX_CONCURRENT_QUESTIONS" default:"0"`

	RunLogRetention time.Duration `envconfig:"RUN_LOG_RETENTION" default:"0"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"policyqa-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
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

func (c *Config) Validate() error {
	switch c.IndexBackend {
	case BackendPinecone, BackendPgvector, BackendMemory:
	default:
		return fmt.Errorf("INDEX_BACKEND must be one of %q, %q, %q, got %q", BackendPinecone, BackendPgvector, BackendMemory, c.IndexBackend)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxConcurrentQuestions < 0 {
		return fmt.Errorf("MAX_CONCURRENT_QUESTIONS cannot be negative")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

func (c *Config) UsePgvector() bool {
	return c.IndexBackend == BackendPgvector
}
