// Package http hosts the API server and its middleware stack.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/internal/infra/http/middleware"
	"github.com/tenantaudit/api/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     *config.Config
	logger     *logger.Logger
	limiter    *middleware.RateLimiter
}

// NewServer creates the HTTP server with the global middleware stack
// applied. Handlers are registered on Router afterwards.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst, log)

	r := chi.NewRouter()
	// Order matters: recovery outermost, request ID before logging.
	r.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		limiter.Middleware(),
		middleware.Timeout(cfg.Server.RequestTimeout),
		middleware.Logger(log),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      r,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  time.Minute,
		},
		router:  r,
		config:  cfg,
		logger:  log,
		limiter: limiter,
	}
}

// Router returns the router for registering handlers.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.config.Server.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.limiter.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
