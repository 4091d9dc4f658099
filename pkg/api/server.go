package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
)

// Server is the gateway HTTP server.
//
// It serves the intercepted application traffic and the local control
// surface on one port, and supports graceful shutdown.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates the gateway HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests.
func NewServer(config APIConfig, deps Deps) *Server {
	config.ApplyDefaults()

	router := NewRouter(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the HTTP server and blocks until the context is
// cancelled or the server fails.
//
// Context cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Gateway listening", "port", s.config.Port)
		logger.Debug("Control endpoints available",
			"health", fmt.Sprintf("http://localhost:%d/health", s.config.Port),
			"status", fmt.Sprintf("http://localhost:%d/control/status", s.config.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Gateway shutdown signal received")
		// The cancelled ctx would abort shutdown immediately; give
		// in-flight requests a bounded window instead.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("gateway server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("Gateway shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("gateway shutdown error: %w", err)
			logger.Error("Gateway shutdown error", "error", err)
		} else {
			logger.Info("Gateway stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
