// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (DATABASE_URL, GEMINI_API_KEY, DOCDEX_*)
//  2. Config file (~/.docdex/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sensitive values (postgres password, API keys) are bound from the
// environment and never logged. Validation is fail-fast with sentinel
// errors checkable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidBackend indicates an unsupported storage backend name.
	ErrInvalidBackend = errors.New("invalid storage backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidQdrantHost indicates the Qdrant host or port is invalid.
	ErrInvalidQdrantHost = errors.New("invalid Qdrant host")

	// ErrInvalidEmbedder indicates an embedder setting is out of range.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidChunking indicates the chunk size/overlap pair is invalid.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTokenBudget indicates the token budget bounds are invalid.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Storage backend identifiers used in Config.Backend.
const (
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// DefaultEmbedderModel truncates its native output to 768 dimensions via
// OutputDimensionality; the pgvector schema and the Qdrant collection are
// both created at that width.
const DefaultEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
type Config struct {
	// Storage backend selection: "postgres" or "qdrant".
	Backend string `mapstructure:"backend"`

	// PostgreSQL connection (see storage.go).
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Qdrant connection.
	QdrantHost       string `mapstructure:"qdrant_host"`
	QdrantPort       int    `mapstructure:"qdrant_port"`
	QdrantAPIKey     string `mapstructure:"qdrant_api_key"` // SENSITIVE: never logged
	QdrantUseTLS     bool   `mapstructure:"qdrant_use_tls"`
	QdrantCollection string `mapstructure:"qdrant_collection"`

	// Embedding provider.
	GeminiAPIKey      string `mapstructure:"gemini_api_key"` // SENSITIVE: never logged
	EmbedderModel     string `mapstructure:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension"`
	EmbedBatchSize    int    `mapstructure:"embed_batch_size"`
	EmbedMaxRetries   int    `mapstructure:"embed_max_retries"`
	EmbedRetryDelayMS int    `mapstructure:"embed_retry_delay_ms"`
	EmbedRPS          int    `mapstructure:"embed_requests_per_second"`

	// Chunking.
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Retrieval token budgets.
	DefaultTokens int `mapstructure:"default_tokens"`
	MaxTokens     int `mapstructure:"max_tokens"`

	// Observability (OTLP trace export; disabled when endpoint is empty).
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
}

// MarshalJSON masks sensitive fields so a dumped config never leaks
// credentials. Any new password/key field must be masked here too.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	if masked.QdrantAPIKey != "" {
		masked.QdrantAPIKey = "***"
	}
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "***"
	}
	return json.Marshal(masked)
}

// EmbedRetryDelay returns the retry delay as a duration.
func (c *Config) EmbedRetryDelay() time.Duration {
	return time.Duration(c.EmbedRetryDelayMS) * time.Millisecond
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".docdex")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docdex")
	v.SetDefault("postgres_password", "docdex_dev_password")
	v.SetDefault("postgres_db_name", "docdex")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_use_tls", false)
	v.SetDefault("qdrant_collection", "docdex")

	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", 768)
	v.SetDefault("embed_batch_size", 100)
	v.SetDefault("embed_max_retries", 3)
	v.SetDefault("embed_retry_delay_ms", 1000)
	v.SetDefault("embed_requests_per_second", 0)

	v.SetDefault("chunk_size", 1500)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("default_tokens", 5000)
	v.SetDefault("max_tokens", 50000)

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "docdex")
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables. Secrets are bound
// explicitly; everything else follows the DOCDEX_ prefix convention
// (backend -> DOCDEX_BACKEND).
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("qdrant_api_key", "QDRANT_API_KEY")
	mustBind("postgres_password", "DOCDEX_POSTGRES_PASSWORD")

	v.SetEnvPrefix("DOCDEX")
	v.AutomaticEnv()
}

// Validate checks the configuration, failing fast with sentinel errors.
// The API key is only required when the embedder is actually used; callers
// that embed should additionally call RequireAPIKey.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
	case BackendQdrant:
		if c.QdrantHost == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidQdrantHost)
		}
		if c.QdrantPort < 1 || c.QdrantPort > 65535 {
			return fmt.Errorf("%w: port %d", ErrInvalidQdrantHost, c.QdrantPort)
		}
		if c.QdrantCollection == "" {
			return fmt.Errorf("%w: collection is empty", ErrInvalidQdrantHost)
		}
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidBackend, c.Backend, BackendPostgres, BackendQdrant)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: model is empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDimension < 1 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidEmbedder, c.EmbedderDimension)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidEmbedder, c.EmbedBatchSize)
	}
	if c.EmbedMaxRetries < 1 {
		return fmt.Errorf("%w: max retries %d", ErrInvalidEmbedder, c.EmbedMaxRetries)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.DefaultTokens < 1 {
		return fmt.Errorf("%w: default %d", ErrInvalidTokenBudget, c.DefaultTokens)
	}
	if c.MaxTokens < c.DefaultTokens {
		return fmt.Errorf("%w: max %d is below default %d",
			ErrInvalidTokenBudget, c.MaxTokens, c.DefaultTokens)
	}
	return nil
}

// RequireAPIKey verifies GEMINI_API_KEY is present. Commands that embed
// (index, mcp) call this; migrate does not need the key.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
