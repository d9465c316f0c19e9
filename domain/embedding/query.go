package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// QueryEmbedder converts raw search input into a query vector using the
// function bound to a vector column.
type QueryEmbedder struct {
	registry *Registry
}

// NewQueryEmbedder creates a QueryEmbedder resolving functions from registry.
func NewQueryEmbedder(registry *Registry) *QueryEmbedder {
	return &QueryEmbedder{registry: registry}
}

// Embed computes the query vector for def. sourceType is the type of def's
// source column; when nil the function's declared SourceType is used. The
// result must have the dimension the function declares for that source type.
func (q *QueryEmbedder) Embed(ctx context.Context, sourceType arrow.DataType, def Definition, query any) ([]float32, error) {
	return q.EmbedForColumn(ctx, nil, sourceType, def, query)
}

// EmbedForColumn is Embed for a search over a stored vector column of type
// dest. The function must still produce vectors of the column's dimension,
// otherwise ErrDimensionMismatch is returned without computing anything. A
// nil dest behaves like Embed.
func (q *QueryEmbedder) EmbedForColumn(ctx context.Context, dest, sourceType arrow.DataType, def Definition, query any) ([]float32, error) {
	column := def.DestColumn()
	if column == "" {
		column = def.SourceColumn()
	}

	fn, err := q.registry.Create(def.Name(), def.Params())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &QueryEmbeddingError{Column: column, Kind: ErrUnknownEmbeddingFunction, Cause: err}
		}
		return nil, fmt.Errorf("embed query for %q: %w", column, err)
	}

	if sourceType == nil {
		sourceType = fn.SourceType()
	}
	vt, err := fn.DestType(sourceType)
	if err != nil {
		return nil, &QueryEmbeddingError{Column: column, Kind: ErrIncompatibleSourceType, Cause: err}
	}
	if dest != nil {
		fsl, ok := dest.(*arrow.FixedSizeListType)
		if !ok {
			return nil, &QueryEmbeddingError{Column: column, Kind: ErrIncompatibleDestType, Detail: fmt.Sprintf("column stores %s", dest)}
		}
		if int(fsl.Len()) != vt.Dimension {
			return nil, &QueryEmbeddingError{
				Column: column,
				Kind:   ErrDimensionMismatch,
				Detail: fmt.Sprintf("function produces %d values, column stores %d", vt.Dimension, fsl.Len()),
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector, err := fn.ComputeQueryEmbeddings(ctx, query)
	if err != nil {
		return nil, &QueryEmbeddingError{Column: column, Kind: ErrFunctionComputeFailed, Cause: err}
	}
	if len(vector) != vt.Dimension {
		return nil, &QueryEmbeddingError{
			Column: column,
			Kind:   ErrDimensionMismatch,
			Detail: fmt.Sprintf("got %d values, expected %d", len(vector), vt.Dimension),
		}
	}
	return vector, nil
}
