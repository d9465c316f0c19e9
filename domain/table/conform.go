package table

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var (
	// ErrUnknownColumn indicates a batch column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrMissingColumn indicates a non-nullable table column absent from a batch.
	ErrMissingColumn = errors.New("missing column")
	// ErrColumnType indicates a batch column whose type differs from the table's.
	ErrColumnType = errors.New("column type mismatch")
	// ErrNullValue indicates nulls in a non-nullable column.
	ErrNullValue = errors.New("null value in non-nullable column")
)

// Conform returns rec rearranged into schema's column order, with schema's
// fields. Nullable columns absent from rec are filled with nulls; any other
// difference is an error. rec is not released.
func Conform(rec arrow.Record, schema *arrow.Schema, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	in := rec.Schema()
	for _, f := range in.Fields() {
		if !schema.HasField(f.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, f.Name)
		}
	}

	rows := int(rec.NumRows())
	cols := make([]arrow.Array, 0, schema.NumFields())
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for _, field := range schema.Fields() {
		idx := in.FieldIndices(field.Name)
		if len(idx) == 0 {
			if !field.Nullable {
				release()
				return nil, fmt.Errorf("%w: %q", ErrMissingColumn, field.Name)
			}
			cols = append(cols, array.MakeArrayOfNull(mem, field.Type, rows))
			continue
		}
		if len(idx) > 1 {
			release()
			return nil, fmt.Errorf("%w: %q appears %d times", ErrUnknownColumn, field.Name, len(idx))
		}

		col := rec.Column(idx[0])
		if !arrow.TypeEqual(col.DataType(), field.Type) {
			release()
			return nil, fmt.Errorf("%w: %q is %s, table has %s", ErrColumnType, field.Name, col.DataType(), field.Type)
		}
		if !field.Nullable && col.NullN() > 0 {
			release()
			return nil, fmt.Errorf("%w: %q", ErrNullValue, field.Name)
		}
		col.Retain()
		cols = append(cols, col)
	}

	out := array.NewRecord(arrow.NewSchema(schema.Fields(), nil), cols, int64(rows))
	release()
	return out, nil
}
