// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sahayak/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingDataDir indicates the data directory is not set.
	ErrMissingDataDir = errors.New("missing data directory")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBatchSize indicates the ingestion batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidBackoff indicates the embedding backoff parameters are inconsistent.
	ErrInvalidBackoff = errors.New("invalid backoff parameters")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidCacheTTL indicates the cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl")

	// ErrInvalidCacheSize indicates the cache size limit is out of range.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidServerAddr indicates the server listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidRateLimit indicates the request rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultDimension is the requested embedding output dimensionality.
	DefaultDimension int32 = 768
)

// Config stores application configuration.
type Config struct {
	// Storage
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// Embedding
	EmbedderModel    string        `mapstructure:"embedder_model" json:"embedder_model"`
	Dimension        int32         `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	EmbedBaseDelay   time.Duration `mapstructure:"embed_base_delay" json:"embed_base_delay"`
	EmbedMaxDelay    time.Duration `mapstructure:"embed_max_delay" json:"embed_max_delay"`
	EmbedDelayGrowth float64       `mapstructure:"embed_delay_growth" json:"embed_delay_growth"`
	EmbedDelayDecay  float64       `mapstructure:"embed_delay_decay" json:"embed_delay_decay"`
	EmbedMaxAttempts int           `mapstructure:"embed_max_attempts" json:"embed_max_attempts"`
	EmbedBaseWait    time.Duration `mapstructure:"embed_base_wait" json:"embed_base_wait"`

	// Chunking and ingestion
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	BatchSize    int `mapstructure:"batch_size" json:"batch_size"`

	// Retrieval
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Response cache
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheMaxBytes int64         `mapstructure:"cache_max_bytes" json:"cache_max_bytes"`

	// HTTP server
	ServerAddr     string  `mapstructure:"server_addr" json:"server_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// IndexPath returns the vector index database location under the data directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", "index.db")
}

// CachePath returns the response cache database location under the data directory.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache", "cache.db")
}

// LockPath returns the writer lock file guarding ingestion.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "ingest.lock")
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sahayak")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data_dir", configDir)

	// Embedding defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dimension", DefaultDimension)
	v.SetDefault("embed_base_delay", "1s")
	v.SetDefault("embed_max_delay", "5s")
	v.SetDefault("embed_delay_growth", 1.5)
	v.SetDefault("embed_delay_decay", 0.9)
	v.SetDefault("embed_max_attempts", 5)
	v.SetDefault("embed_base_wait", "30s")

	// Chunking defaults
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("batch_size", 50)

	// Retrieval defaults
	v.SetDefault("top_k", 5)

	// Cache defaults
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("cache_max_bytes", int64(500<<20))

	// Server defaults
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("rate_limit_rps", 10.0)
	v.SetDefault("rate_limit_burst", 20)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
// Its presence is checked in app bootstrap when an embedder is required.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("data_dir", "SAHAYAK_DATA_DIR")
	mustBind("server_addr", "SAHAYAK_ADDR")
	mustBind("embedder_model", "SAHAYAK_EMBEDDER_MODEL")
	mustBind("log_level", "SAHAYAK_LOG_LEVEL")
	mustBind("log_json", "SAHAYAK_LOG_JSON")
}
