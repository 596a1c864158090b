// Package embedding converts text spans and queries into fixed-dimension
// vectors through an external embedding service, staying inside the service's
// request-rate quota.
//
// The backing service rejects bursts, so texts are embedded one at a time with
// an adaptive pause between calls: quota rejections grow the pause, sustained
// success shrinks it back toward the baseline. Calls within one Client are
// deliberately serialized — concurrent requests would defeat the delay
// bookkeeping.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// Defaults for the adaptive rate policy. BaseWait is large because the
// upstream quota window is per-minute; retries that come back too early are
// rejected again.
const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 5 * time.Second
	DefaultDelayGrowth = 1.5
	DefaultDelayDecay  = 0.9
	DefaultMaxAttempts = 5
	DefaultBaseWait    = 30 * time.Second
)

// Config tunes the adaptive rate policy.
type Config struct {
	// BaseDelay is the pause between consecutive embedding calls when the
	// service is healthy. The adaptive delay never drops below it.
	BaseDelay time.Duration

	// MaxDelay caps the adaptive delay after repeated quota rejections.
	MaxDelay time.Duration

	// DelayGrowth multiplies the delay on each quota rejection.
	DelayGrowth float64

	// DelayDecay multiplies the delay after a clean success, recovering
	// throughput gradually.
	DelayDecay float64

	// MaxAttempts bounds retries per text. Together with BaseWait it puts a
	// finite ceiling on how long one Embed call can stall.
	MaxAttempts int

	// BaseWait scales the per-attempt retry wait: attempt n waits n×BaseWait.
	BaseWait time.Duration

	// Dimension, when positive, requests truncated output vectors of this
	// length from the service.
	Dimension int32
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.DelayGrowth <= 1 {
		c.DelayGrowth = DefaultDelayGrowth
	}
	if c.DelayDecay <= 0 || c.DelayDecay >= 1 {
		c.DelayDecay = DefaultDelayDecay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseWait <= 0 {
		c.BaseWait = DefaultBaseWait
	}
	return c
}

// SleepFunc pauses for d or returns early with ctx.Err() on cancellation.
// Tests inject one to exercise the backoff logic without real time.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Client.
type Option func(*Client)

// WithSleep replaces the sleep implementation. Tests only.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// Client embeds texts through an ai.Embedder under the adaptive rate policy.
//
// Client serializes upstream calls: Embed holds an internal lock for the full
// run so the mutable delay is never shared between in-flight requests.
type Client struct {
	embedder ai.Embedder
	cfg      Config
	logger   *slog.Logger
	sleep    SleepFunc

	mu    sync.Mutex
	delay time.Duration
}

// New creates a Client around the given embedder.
func New(embedder ai.Embedder, cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	c := &Client{
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		sleep:    defaultSleep,
		delay:    cfg.BaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns one vector per input text, positionally aligned with texts.
//
// Texts are processed sequentially with the adaptive pause between calls.
// Quota rejections are retried with growing waits; any other upstream error
// fails immediately. On failure the returned *Error reports how many vectors
// were computed before the failing text, so callers can decide what to do
// with partial progress.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vectors := make([][]float32, 0, len(texts))

	for i, text := range texts {
		if i > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return nil, &Error{Completed: len(vectors), Total: len(texts), Err: err}
			}
		}

		vec, err := c.embedWithRetry(ctx, text)
		if err != nil {
			c.logger.Error("embedding failed",
				"completed", len(vectors),
				"total", len(texts),
				"error", err)
			return nil, &Error{Completed: len(vectors), Total: len(texts), Err: err}
		}
		vectors = append(vectors, vec)
	}

	return vectors, nil
}

// embedWithRetry embeds a single text, absorbing quota rejections with
// exponentially growing waits up to MaxAttempts. Caller holds c.mu.
func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	quotaHit := false

	for attempt := 1; ; attempt++ {
		vec, err := c.embedOne(ctx, text)
		if err == nil {
			// Recover throughput only on runs untouched by quota errors.
			if !quotaHit && c.delay > c.cfg.BaseDelay {
				c.delay = max(c.cfg.BaseDelay, time.Duration(float64(c.delay)*c.cfg.DelayDecay))
			}
			return vec, nil
		}

		if !IsQuota(err) {
			return nil, err
		}

		quotaHit = true
		c.delay = min(c.cfg.MaxDelay, time.Duration(float64(c.delay)*c.cfg.DelayGrowth))

		if attempt >= c.cfg.MaxAttempts {
			return nil, fmt.Errorf("quota retries exhausted after %d attempts: %w", attempt, err)
		}

		wait := time.Duration(attempt) * c.cfg.BaseWait
		c.logger.Warn("embedding quota exceeded, backing off",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"wait", wait,
			"next_delay", c.delay)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// embedOne performs a single upstream call.
func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	}
	if c.cfg.Dimension > 0 {
		dim := c.cfg.Dimension
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := c.embedder.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}

// CurrentDelay reports the adaptive delay between calls. It blocks while an
// Embed run is in flight.
func (c *Client) CurrentDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}
