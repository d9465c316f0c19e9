package embedding

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	ErrDuplicateName = errors.New("embedding function already registered")
	ErrNotFound      = errors.New("embedding function not found")
)

// Schema reconciliation errors.
var (
	ErrSourceColumnMissing      = errors.New("source column missing")
	ErrUnknownEmbeddingFunction = errors.New("unknown embedding function")
	ErrIncompatibleSourceType   = errors.New("incompatible source column type")
	ErrIncompatibleDestType     = errors.New("incompatible destination column type")
	ErrDestNameCollision        = errors.New("destination column name collision")
	ErrSchemaMismatch           = errors.New("schema mismatch")
	ErrInvalidDefinition        = errors.New("invalid embedding definition")
)

// Materialization and query errors.
var (
	ErrSourceColumnHasNulls   = errors.New("source column has nulls")
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrFunctionComputeFailed  = errors.New("embedding function compute failed")
)

// RegistryError reports a failed registry operation for a function name.
type RegistryError struct {
	Name string
	Kind error
}

// Error implements error.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %q", e.Kind, e.Name)
}

// Unwrap returns the error kind.
func (e *RegistryError) Unwrap() error { return e.Kind }

// SchemaError reports a definition that cannot be reconciled against a schema.
type SchemaError struct {
	Column string
	Kind   error
	Detail string
	Cause  error
}

// Error implements error.
func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s: column %q", e.Kind, e.Column)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the error kind and, when present, the underlying cause.
func (e *SchemaError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// MaterializationError reports a failure to compute a destination column for a batch.
// Compute failures keep the provider error reachable through errors.Is/As.
type MaterializationError struct {
	Column string
	Kind   error
	Detail string
	Cause  error
}

// Error implements error.
func (e *MaterializationError) Error() string {
	msg := fmt.Sprintf("materialize %q: %s", e.Column, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the error kind and, when present, the underlying cause.
func (e *MaterializationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// QueryEmbeddingError reports a failure to embed a raw search query.
type QueryEmbeddingError struct {
	Column string
	Kind   error
	Detail string
	Cause  error
}

// Error implements error.
func (e *QueryEmbeddingError) Error() string {
	msg := fmt.Sprintf("embed query for %q: %s", e.Column, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the error kind and, when present, the underlying cause.
func (e *QueryEmbeddingError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}
