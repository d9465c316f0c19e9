package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server owns the HTTP listener.
type Server struct {
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
	addr       string
}

// NewServer creates a Server for handler. Panics in handlers are recovered
// and answered with 500.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) Server {
	if logger == nil {
		logger = slog.Default()
	}
	return Server{
		handler: chimiddleware.RealIP(chimiddleware.Recoverer(handler)),
		addr:    addr,
		logger:  logger,
	}
}

// Start listens on the server address and blocks until shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", slog.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s Server) Addr() string {
	return s.addr
}
