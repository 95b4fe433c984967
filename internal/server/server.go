// Package server exposes discovery output over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/server/handler"
	"github.com/alanyoungcy/arbdiscovery/internal/server/middleware"
	"github.com/alanyoungcy/arbdiscovery/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards every route except /api/health. Empty disables auth.
	APIKey string
	// RateLimit is requests per minute per client IP. Zero or a nil
	// Limiter disables it.
	RateLimit int
	Limiter   domain.RateLimiter
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Discovery     *handler.DiscoveryHandler
	Stream        *handler.StreamHandler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and wraps them in
// CORS → logging → rate limit → auth.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListLive)
	mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunities.ListHistory)
	if handlers.Stream != nil {
		mux.HandleFunc("GET /api/opportunities/stream", handlers.Stream.Since)
	}
	mux.HandleFunc("GET /api/stats", handlers.Opportunities.Stats)
	mux.HandleFunc("GET /api/matches", handlers.Discovery.ListMatches)
	mux.HandleFunc("GET /api/availability", handlers.Discovery.ListAvailability)
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var limit middleware.Middleware
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		limit = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute)
	}
	h := middleware.Chain(mux,
		middleware.CORS(cfg.CORSOrigins),
		middleware.Logging(logger),
		limit,
		middleware.Auth(cfg.APIKey, "/api/health"),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the wrapped route tree.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Run serves until ctx ends, then shuts down within 10s.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
