package config

import (
	"fmt"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrMissingDataDir)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Dimension 0 means "use the model default"; anything else must be a
	// sensible truncation target.
	if c.Dimension < 0 || c.Dimension > 3072 {
		return fmt.Errorf("%w: must be between 0 and 3072, got %d", ErrInvalidDimension, c.Dimension)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidBatchSize, c.BatchSize)
	}

	if c.EmbedBaseDelay <= 0 || c.EmbedMaxDelay < c.EmbedBaseDelay {
		return fmt.Errorf("%w: need 0 < embed_base_delay <= embed_max_delay, got %v and %v",
			ErrInvalidBackoff, c.EmbedBaseDelay, c.EmbedMaxDelay)
	}
	if c.EmbedDelayGrowth <= 1.0 {
		return fmt.Errorf("%w: embed_delay_growth must be > 1.0, got %.2f",
			ErrInvalidBackoff, c.EmbedDelayGrowth)
	}
	if c.EmbedDelayDecay <= 0 || c.EmbedDelayDecay >= 1.0 {
		return fmt.Errorf("%w: embed_delay_decay must be in (0, 1), got %.2f",
			ErrInvalidBackoff, c.EmbedDelayDecay)
	}
	if c.EmbedMaxAttempts < 1 {
		return fmt.Errorf("%w: embed_max_attempts must be positive, got %d",
			ErrInvalidBackoff, c.EmbedMaxAttempts)
	}
	if c.EmbedBaseWait <= 0 {
		return fmt.Errorf("%w: embed_base_wait must be positive, got %v",
			ErrInvalidBackoff, c.EmbedBaseWait)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidCacheTTL, c.CacheTTL)
	}
	if c.CacheMaxBytes < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidCacheSize, c.CacheMaxBytes)
	}

	if strings.TrimSpace(c.ServerAddr) == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive, got %.2f",
			ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be positive, got %d",
			ErrInvalidRateLimit, c.RateLimitBurst)
	}

	return nil
}
