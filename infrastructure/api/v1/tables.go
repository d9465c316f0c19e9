// Package v1 implements the v1 HTTP API.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
	"github.com/helixml/vectable/infrastructure/api/middleware"
)

// TablesRouter handles table endpoints.
type TablesRouter struct {
	conn   *vectable.Connection
	logger *slog.Logger
}

// NewTablesRouter creates a new TablesRouter.
func NewTablesRouter(conn *vectable.Connection) *TablesRouter {
	return &TablesRouter{conn: conn, logger: conn.Logger()}
}

// Routes returns the chi router for table endpoints.
func (r *TablesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Get("/{name}", r.Get)
	router.Post("/{name}/search", r.Search)

	return router
}

// List handles GET /api/v1/tables.
func (r *TablesRouter) List(w http.ResponseWriter, req *http.Request) {
	names, err := r.conn.TableNames(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(jsonapi.NameResources(jsonapi.TypeTable, names)))
}

// Get handles GET /api/v1/tables/{name}.
func (r *TablesRouter) Get(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	t, err := r.conn.OpenTable(ctx, chi.URLParam(req, "name"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	meta, err := t.Metadata(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.TableResource(meta)))
}
