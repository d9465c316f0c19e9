package service

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// prepare materializes the vector columns of every batch and conforms it to
// schema. Either all batches are returned, for the caller to release, or none.
func prepare(
	ctx context.Context,
	pipeline *embedding.Pipeline,
	mem memory.Allocator,
	schema *arrow.Schema,
	defs []embedding.Definition,
	records []arrow.Record,
) ([]arrow.Record, error) {
	out := make([]arrow.Record, 0, len(records))
	fail := func(err error) ([]arrow.Record, error) {
		releaseAll(out)
		return nil, err
	}

	for i, rec := range records {
		if rec == nil {
			return fail(fmt.Errorf("batch %d is nil", i))
		}
		materialized, err := pipeline.MaterializeInto(ctx, rec, schema, defs)
		if err != nil {
			return fail(fmt.Errorf("batch %d: %w", i, err))
		}
		conformed, err := table.Conform(materialized, schema, mem)
		materialized.Release()
		if err != nil {
			return fail(fmt.Errorf("batch %d: %w", i, err))
		}
		out = append(out, conformed)
	}
	return out, nil
}

func releaseAll(records []arrow.Record) {
	for _, rec := range records {
		rec.Release()
	}
}

func countRows(records []arrow.Record) int64 {
	var n int64
	for _, rec := range records {
		n += rec.NumRows()
	}
	return n
}
