// Package api serves vectable tables over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/helixml/vectable"
	apimiddleware "github.com/helixml/vectable/infrastructure/api/middleware"
	v1 "github.com/helixml/vectable/infrastructure/api/v1"
)

// APIServer provides an HTTP API backed by a vectable Connection.
type APIServer struct {
	conn        *vectable.Connection
	version     string
	corsOrigins []string
	server      *Server
	router      chi.Router
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithCORSOrigins lets browsers on the given origins call the API.
func WithCORSOrigins(origins ...string) APIServerOption {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// NewAPIServer creates a new APIServer wired to conn. version is reported
// by /healthz.
func NewAPIServer(conn *vectable.Connection, version string, opts ...APIServerOption) *APIServer {
	a := &APIServer{conn: conn, version: version}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the routes as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.router = chi.NewRouter()
		a.router.Use(chimiddleware.RequestID)
		a.router.Use(apimiddleware.Logging(a.conn.Logger()))
		if len(a.corsOrigins) > 0 {
			a.router.Use(cors.Handler(cors.Options{
				AllowedOrigins: a.corsOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
				ExposedHeaders: []string{"X-Request-Id"},
				MaxAge:         300,
			}))
		}
		a.mountRoutes(a.router)
	}
	return a.router
}

func (a *APIServer) mountRoutes(router chi.Router) {
	router.Get("/healthz", a.health)
	router.Mount("/docs", NewDocsRouter("/docs/openapi.json").Routes())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Mount("/functions", v1.NewFunctionsRouter(a.conn).Routes())
		r.Mount("/tables", v1.NewTablesRouter(a.conn).Routes())
	})
}

func (a *APIServer) health(w http.ResponseWriter, req *http.Request) {
	if _, err := a.conn.TableNames(req.Context()); err != nil {
		apimiddleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.Handler(), a.conn.Logger())
	a.server = &server
	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
