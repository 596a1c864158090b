// Package app provides application initialization and dependency injection.
//
// App is the container that wires all components: the vector index, the
// response cache, the embedding client, and the retrieval service. Commands
// call Setup (full stack, needs a Gemini API key) or SetupLocal (stores
// only, for offline commands like stats and clear).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/gofrs/flock"

	"github.com/sahayak-ai/sahayak/internal/cache"
	"github.com/sahayak-ai/sahayak/internal/chunker"
	"github.com/sahayak-ai/sahayak/internal/config"
	"github.com/sahayak-ai/sahayak/internal/embedding"
	"github.com/sahayak-ai/sahayak/internal/index"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

// ErrIngestLocked indicates another process holds the ingestion lock.
var ErrIngestLocked = errors.New("another ingestion is already running")

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Index     *index.Store
	Cache     *cache.Cache
	Retriever *retriever.Service
}

// Setup creates and initializes the full application stack.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a, err := SetupLocal(cfg, logger)
	if err != nil {
		return nil, err
	}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	embedder, g, err := provideEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	client := embedding.New(embedder, embedding.Config{
		BaseDelay:   cfg.EmbedBaseDelay,
		MaxDelay:    cfg.EmbedMaxDelay,
		DelayGrowth: cfg.EmbedDelayGrowth,
		DelayDecay:  cfg.EmbedDelayDecay,
		MaxAttempts: cfg.EmbedMaxAttempts,
		BaseWait:    cfg.EmbedBaseWait,
		Dimension:   cfg.Dimension,
	}, logger)

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	a.Retriever = retriever.New(ch, client, a.Index, cfg.BatchSize, logger)
	return a, nil
}

// SetupLocal initializes only the local stores. Commands that never touch
// the embedding backend (stats, clear) use this to avoid requiring an API key.
func SetupLocal(cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	idx, err := index.Open(cfg.IndexPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	a.Index = idx

	c, err := cache.Open(cfg.CachePath(), logger, cache.WithMaxBytes(cfg.CacheMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}
	a.Cache = c

	return a, nil
}

// provideEmbedder initializes Genkit with the Google AI plugin and resolves
// the configured embedder model.
func provideEmbedder(ctx context.Context, cfg *config.Config) (ai.Embedder, *genkit.Genkit, error) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return nil, nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			config.ErrMissingAPIKey)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("%w: embedder %q not found", config.ErrInvalidEmbedderModel, cfg.EmbedderModel)
	}
	return embedder, g, nil
}

// LockIngest takes the cross-process ingestion lock. The returned release
// function must be called when ingestion finishes.
func (a *App) LockIngest() (release func(), err error) {
	fl := flock.New(a.Config.LockPath())

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ingestion lock: %w", err)
	}
	if !locked {
		return nil, ErrIngestLocked
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			a.Logger.Warn("releasing ingestion lock", "error", err)
		}
	}, nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
		a.Cache = nil
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing index: %w", err))
		}
		a.Index = nil
	}
	return errors.Join(errs...)
}
