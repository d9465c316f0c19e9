package service

import (
	"errors"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// Service errors. Several alias domain sentinels so callers can match
// either name with errors.Is.
var (
	ErrTableExists    = table.ErrExists
	ErrTableNotFound  = table.ErrNotFound
	ErrSchemaMismatch = embedding.ErrSchemaMismatch
	ErrNoSchema       = errors.New("table needs a schema or initial data")
	ErrNoVectorColumn = errors.New("no vector column to search")
	ErrQueryVector    = errors.New("invalid query vector")
)
