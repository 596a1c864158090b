// Package cache implements the persistent response cache: JSON values keyed
// by deterministic request keys, with per-entry TTL and a size-bounded LRU
// beneath it.
//
// The computations this cache protects (embedding batches plus downstream
// generation calls) are the costliest operations in the system; persisting
// entries on disk means a process restart does not discard recent work.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sahayak-ai/sahayak/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Defaults mirror the operational bounds the service has always run with.
const (
	DefaultTTL      = 1 * time.Hour
	DefaultMaxBytes = 500 << 20 // 500MB
)

// StorageError wraps an I/O failure from the cache database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Cache is the SQLite-backed response cache. Reads after an entry's TTL
// behave as misses; total stored bytes are bounded with least-recently-used
// eviction beneath the TTL logic.
type Cache struct {
	db       *sql.DB
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxBytes overrides the size bound.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithClock replaces the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Open opens (or creates) the cache database at dbPath and applies schema
// migrations. The cache survives process restarts.
func Open(dbPath string, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(dbPath)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := database.Migrate(db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", err)
	}

	c := &Cache{
		db:       db,
		maxBytes: DefaultMaxBytes,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// BuildKey derives a deterministic cache key from an endpoint name and its
// identifying fields. Fields are trimmed and lower-cased so call-site
// formatting differences (case, whitespace) cannot split logically identical
// requests across keys; empty fields are skipped.
func BuildKey(endpoint string, fields ...string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, strings.ToLower(strings.TrimSpace(endpoint)))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ":")
}

// Get returns the value stored under key, or ok=false on a miss. An entry
// past its TTL behaves exactly like an absent one (and is lazily evicted).
// A hit refreshes the entry's LRU position.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var (
		value     []byte
		createdAt int64
		ttl       int64
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT value, created_at, ttl_seconds FROM entries WHERE key = ?", key,
	).Scan(&value, &createdAt, &ttl)
	if err == sql.ErrNoRows {
		c.logger.Debug("cache miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get", err)
	}

	now := c.now().Unix()
	if now >= createdAt+ttl {
		// Expired: indistinguishable from absent at the contract level.
		if _, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
			c.logger.Warn("failed to evict expired entry", "key", key, "error", err)
		}
		c.logger.Debug("cache miss (expired)", "key", key)
		return nil, false, nil
	}

	if _, err := c.db.ExecContext(ctx,
		"UPDATE entries SET last_access = ? WHERE key = ?", now, key); err != nil {
		c.logger.Warn("failed to update cache LRU position", "key", key, "error", err)
	}

	c.logger.Debug("cache hit", "key", key)
	return json.RawMessage(value), true, nil
}

// Set stores value under key with the given TTL (DefaultTTL if ttl <= 0),
// overwriting any prior entry for the key atomically. After the write, the
// least-recently-used entries are evicted until total stored bytes fit the
// bound again.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %q: %w", key, err)
	}

	now := c.now().Unix()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO entries (key, value, size, created_at, ttl_seconds, last_access)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			size = excluded.size,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds,
			last_access = excluded.last_access`,
		key, encoded, len(encoded), now, int64(ttl.Seconds()), now)
	if err != nil {
		return storageErr("set", err)
	}

	if err := c.evict(ctx, now); err != nil {
		return err
	}

	c.logger.Debug("cached response", "key", key, "bytes", len(encoded), "ttl", ttl)
	return nil
}

// evict drops expired entries and then least-recently-used ones until the
// size bound holds. Called after every write so growth stays bounded.
func (c *Cache) evict(ctx context.Context, now int64) error {
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM entries WHERE created_at + ttl_seconds <= ?", now); err != nil {
		return storageErr("evict", err)
	}

	for {
		var total sql.NullInt64
		if err := c.db.QueryRowContext(ctx,
			"SELECT SUM(size) FROM entries").Scan(&total); err != nil {
			return storageErr("evict", err)
		}
		if !total.Valid || total.Int64 <= c.maxBytes {
			return nil
		}

		res, err := c.db.ExecContext(ctx, `
			DELETE FROM entries WHERE key IN (
				SELECT key FROM entries ORDER BY last_access ASC, key ASC LIMIT 1
			)`)
		if err != nil {
			return storageErr("evict", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return nil
		}
	}
}

// Clear empties the entire cache. Operational and maintenance use only.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return storageErr("clear", err)
	}
	c.logger.Info("cache cleared")
	return nil
}
