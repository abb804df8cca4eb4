// Package server exposes the read-only HTTP and WebSocket API over the
// consensus cache and round history.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantarc/oracled/internal/domain"
	"github.com/quantarc/oracled/internal/server/handler"
	"github.com/quantarc/oracled/internal/server/middleware"
	"github.com/quantarc/oracled/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string             // if empty, authentication is disabled
	RateLimiter     domain.RateLimiter // if nil, rate limiting is disabled
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Prices  *handler.PriceHandler
	History *handler.HistoryHandler
}

// Server is the HTTP + WebSocket API server for the oracle daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health endpoints (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/health/{symbol...}", handlers.Health.SymbolHealth)

	// Consensus read endpoints.
	mux.HandleFunc("GET /api/price/{symbol...}", handlers.Prices.GetPrice)
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)
	mux.HandleFunc("GET /api/history/{symbol...}", handlers.History.ListHistory)

	// Prometheus scrape endpoint (no auth required).
	mux.Handle("GET /metrics", promhttp.Handler())

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Auth skips health and metrics so probes and scrapers need no key.
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if cfg.RateLimiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
