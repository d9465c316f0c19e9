package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/helixml/vectable/application/service"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
)

// APIError is an error with an explicit HTTP status.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Code returns the HTTP status code.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing message.
func (e *APIError) Message() string { return e.message }

// Error implements error.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the cause.
func (e *APIError) Unwrap() error { return e.cause }

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	var apiErr *APIError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var schemaErr *embedding.SchemaError
	var queryErr *embedding.QueryEmbeddingError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.code
	case errors.Is(err, table.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, table.ErrExists), errors.Is(err, embedding.ErrSchemaMismatch):
		return http.StatusConflict
	case errors.Is(err, embedding.ErrFunctionComputeFailed):
		return http.StatusBadGateway
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.As(err, &schemaErr), errors.As(err, &queryErr),
		errors.Is(err, table.ErrInvalidName),
		errors.Is(err, table.ErrUnknownColumn),
		errors.Is(err, service.ErrNoVectorColumn),
		errors.Is(err, service.ErrQueryVector):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON:API error document. Server errors are
// logged; their detail is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := StatusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		detail = http.StatusText(status)
	}
	WriteJSON(w, status, jsonapi.NewErrorResponse(
		jsonapi.NewError(strconv.Itoa(status), http.StatusText(status), detail),
	))
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
