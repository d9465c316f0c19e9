package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectable/application/service"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(404, "resource not found", nil)
	assert.Equal(t, 404, err.Code())
	assert.Equal(t, "resource not found", err.Message())
	assert.Equal(t, "api error 404: resource not found", err.Error())

	cause := errors.New("underlying error")
	wrapped := NewAPIError(500, "internal error", cause)
	assert.Equal(t, "api error 500: internal error: underlying error", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"api error", NewAPIError(http.StatusTeapot, "tea", nil), http.StatusTeapot},
		{"not found", fmt.Errorf("find: %w", table.ErrNotFound), http.StatusNotFound},
		{"exists", table.ErrExists, http.StatusConflict},
		{"mismatch", fmt.Errorf("%w: docs", embedding.ErrSchemaMismatch), http.StatusConflict},
		{"compute", &embedding.MaterializationError{Column: "v", Kind: embedding.ErrFunctionComputeFailed}, http.StatusBadGateway},
		{"schema", &embedding.SchemaError{Column: "text", Kind: embedding.ErrSourceColumnMissing}, http.StatusBadRequest},
		{"unknown column", table.ErrUnknownColumn, http.StatusBadRequest},
		{"query vector", service.ErrQueryVector, http.StatusBadRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError_HidesServerErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteError(w, r, errors.New("secret connection string"), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	var doc jsonapi.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "500", doc.Errors[0].Status)
}

func TestWriteError_ClientErrorsKeepDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteError(w, r, fmt.Errorf("%w: \"docs\"", table.ErrNotFound), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "docs")
}
