// Package server hosts the service's two HTTP surfaces: the public API
// (streaming and publish endpoints) and the management API (health,
// readiness, metrics, version), each on its own listener with graceful
// lifecycle management.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

// Config holds the listen addresses and timeouts for both servers.
type Config struct {
	Addr              string
	ManagementAddr    string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server runs the public and management HTTP servers as one unit.
//
// The public server carries long-lived streaming responses, so it sets no
// write timeout: a write deadline would sever every SSE connection at the
// deadline regardless of activity.
type Server struct {
	cfg        Config
	log        logger.Logger
	public     *http.Server
	management *http.Server
}

// New assembles the servers from the two handlers.
func New(cfg Config, public, management http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		cfg: cfg,
		log: log,
		public: &http.Server{
			Addr:              cfg.Addr,
			Handler:           public,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		management: &http.Server{
			Addr:              cfg.ManagementAddr,
			Handler:           management,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
	}
}

// Run starts both servers and blocks until ctx is canceled or either
// server fails, then shuts both down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 2)

	s.log.Info("starting public server", "addr", s.cfg.Addr)
	go func() {
		if err := s.public.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.log.Info("starting management server", "addr", s.cfg.ManagementAddr)
	go func() {
		if err := s.management.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
		s.log.Error("server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	s.log.Info("shutting down servers")
	if err := s.public.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := s.management.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 15 * time.Second
}
