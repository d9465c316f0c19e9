// Package provider implements the built-in embedding functions.
//
// Each function satisfies embedding.Function and is registered under a fixed
// name by RegisterBuiltins. Functions embed string columns only.
package provider

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Built-in function names.
const (
	OpenAIName               = "openai"
	SentenceTransformersName = "sentence-transformers"
	HashName                 = "hash"
)

var (
	// ErrUnsupportedSource indicates a source column type the function cannot embed.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrUnsupportedQuery indicates a query value that is not text.
	ErrUnsupportedQuery = errors.New("unsupported query type")
	// ErrUnknownDimension indicates a model whose output size is not known.
	ErrUnknownDimension = errors.New("unknown embedding dimension")
)

// ProviderError wraps provider errors with additional context.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewProviderError creates a new ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.operation + ": " + e.message
	if e.statusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.statusCode)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Operation returns the operation that failed.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code if available.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// textDestType accepts Utf8 and LargeUtf8 source columns.
func textDestType(source arrow.DataType, dimension int) error {
	if source == nil {
		return fmt.Errorf("%w: nil", ErrUnsupportedSource)
	}
	switch source.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", ErrUnknownDimension, dimension)
	}
	return nil
}

// texts copies the values of a string column. Null slots become "".
func texts(source arrow.Array) ([]string, error) {
	type stringArray interface {
		arrow.Array
		Value(int) string
	}
	col, ok := source.(stringArray)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source.DataType())
	}
	out := make([]string, col.Len())
	for i := range out {
		if col.IsValid(i) {
			out[i] = col.Value(i)
		}
	}
	return out, nil
}

// queryText extracts the text of a raw query value.
func queryText(query any) (string, error) {
	switch q := query.(type) {
	case string:
		return q, nil
	case []byte:
		return string(q), nil
	case *array.String:
		if q.Len() == 1 && q.IsValid(0) {
			return q.Value(0), nil
		}
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedQuery, query)
}
