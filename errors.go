package vectable

import (
	"errors"

	"github.com/helixml/vectable/application/service"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// Connection errors.
var (
	ErrNoDatabase = errors.New("vectable: no database configured, use WithSQLite, WithPostgres or WithDatabaseURL")
	ErrClosed     = errors.New("vectable: connection closed")
)

// Errors returned by table operations, matchable with errors.Is.
var (
	ErrTableExists    = service.ErrTableExists
	ErrTableNotFound  = service.ErrTableNotFound
	ErrSchemaMismatch = service.ErrSchemaMismatch
	ErrInvalidName    = table.ErrInvalidName
	ErrNoSchema       = service.ErrNoSchema
	ErrQueryVector    = service.ErrQueryVector

	ErrDuplicateName            = embedding.ErrDuplicateName
	ErrUnknownEmbeddingFunction = embedding.ErrUnknownEmbeddingFunction
	ErrSourceColumnMissing      = embedding.ErrSourceColumnMissing
	ErrDestNameCollision        = embedding.ErrDestNameCollision
	ErrSourceColumnHasNulls     = embedding.ErrSourceColumnHasNulls
	ErrFunctionComputeFailed    = embedding.ErrFunctionComputeFailed
)
