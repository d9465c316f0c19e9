package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
	"github.com/helixml/vectable/infrastructure/api/middleware"
)

// FunctionsRouter lists the registered embedding functions.
type FunctionsRouter struct {
	conn *vectable.Connection
}

// NewFunctionsRouter creates a new FunctionsRouter.
func NewFunctionsRouter(conn *vectable.Connection) *FunctionsRouter {
	return &FunctionsRouter{conn: conn}
}

// Routes returns the chi router for function endpoints.
func (r *FunctionsRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", r.List)
	return router
}

// List handles GET /api/v1/functions.
func (r *FunctionsRouter) List(w http.ResponseWriter, _ *http.Request) {
	names := r.conn.EmbeddingRegistry().Names()
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewListResponse(jsonapi.NameResources(jsonapi.TypeFunction, names)))
}
