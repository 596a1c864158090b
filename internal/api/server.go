package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahayak-ai/sahayak/internal/index"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "localhost:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Retrieval includes a remote embedding call that can back off under
	// quota pressure, so this is generous.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Retriever is the retrieval surface the API depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...retriever.SearchOption) (index.SearchResult, error)
	ContextString(ctx context.Context, query string, opts ...retriever.SearchOption) (string, error)
}

// Index is the corpus management surface the API depends on.
type Index interface {
	Stats(ctx context.Context) (index.Stats, error)
	DeleteAll(ctx context.Context) error
}

// ResponseCache is the cache surface the API depends on.
type ResponseCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	CacheTTL       time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server is the HTTP server for the retrieval REST API.
type Server struct {
	mux    *http.ServeMux
	cfg    Config
	logger *slog.Logger

	retriever Retriever
	index     Index
	cache     ResponseCache
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg Config, ret Retriever, idx Index, cache ResponseCache, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		mux:       http.NewServeMux(),
		cfg:       cfg,
		logger:    logger,
		retriever: ret,
		index:     idx,
		cache:     cache,
	}

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/v1/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/v1/context", s.handleContext)
	s.mux.HandleFunc("DELETE /api/v1/documents", s.handleClear)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → request ID → logging → rate limit → handler
func (s *Server) Handler() http.Handler {
	rl := newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst)
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware(),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(rl, s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
