package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/vectable/domain/search"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
	"github.com/helixml/vectable/infrastructure/api/middleware"
	"github.com/helixml/vectable/infrastructure/api/v1/dto"
)

// Search handles POST /api/v1/tables/{name}/search.
//
// Rows come back as JSON objects, nearest first, each with a "_distance"
// member.
func (r *TablesRouter) Search(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	name := chi.URLParam(req, "name")

	var body dto.SearchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid request body", err), r.logger)
		return
	}
	query, err := body.QueryValue()
	if err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid query", err), r.logger)
		return
	}
	metric, err := search.ParseMetric(body.Metric)
	if err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid metric", err), r.logger)
		return
	}

	t, err := r.conn.OpenTable(ctx, name)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	q := t.Search(query).Metric(metric)
	if body.Column != "" {
		q = q.Column(body.Column)
	}
	if body.Limit > 0 {
		q = q.Limit(body.Limit)
	}
	if len(body.Select) > 0 {
		q = q.Select(body.Select...)
	}

	result, err := q.Execute(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	defer result.Release()

	rows, err := result.MarshalJSON()
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, &jsonapi.Document{
		Data: json.RawMessage(rows),
		Meta: jsonapi.Meta{
			"table":  name,
			"metric": string(metric),
			"count":  result.NumRows(),
		},
	})
}
