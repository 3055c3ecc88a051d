// Package server exposes the sentinel HTTP, SSE and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
	"github.com/alanyoungcy/tradersentinel/internal/metrics"
	"github.com/alanyoungcy/tradersentinel/internal/server/handler"
	"github.com/alanyoungcy/tradersentinel/internal/server/middleware"
	"github.com/alanyoungcy/tradersentinel/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter and RateLimitPerMin enable per-IP limiting when both are
	// set.
	RateLimiter     domain.RateLimiter
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server registers. Hub and
// TTS may be nil.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Streams *handler.StreamHandler
	TTS     *handler.TTSHandler
	Hub     *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// publicPaths skip API-key authentication.
var publicPaths = []string{"/health", "/api/health", "/metrics"}

// NewHandler registers every route and wraps the mux in the middleware
// chain: CORS, logging, rate limit, auth.
func NewHandler(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/market/snapshot", h.Markets.Snapshot)
	mux.HandleFunc("GET /api/market/arb", h.Markets.Arbitrage)
	mux.HandleFunc("GET /api/market/latest", h.Markets.Latest)
	mux.HandleFunc("GET /api/venues", h.Markets.Venues)

	mux.HandleFunc("GET /api/market/stream", h.Streams.SSE)
	mux.HandleFunc("GET /ws/market", h.Streams.WebSocket)

	if h.TTS != nil {
		mux.HandleFunc("GET /api/tts", h.TTS.Speak)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey, publicPaths...)(out)
	if cfg.RateLimiter != nil && cfg.RateLimitPerMin > 0 {
		out = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMin, time.Minute, logger)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// NewServer creates a Server listening on cfg.Addr. Request contexts derive
// from base so that open streams end when base is cancelled.
func NewServer(base context.Context, cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, h, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
