package table

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Store persists tables and their record batches. Every mutating method is
// atomic: either all of its batches become visible or none do.
type Store interface {
	// Find returns the named table or ErrNotFound.
	Find(ctx context.Context, name string) (Table, error)

	// Exists reports whether the named table exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Create stores a new table together with its initial batches. When
	// replace is true an existing table of the same name and all its data
	// are discarded first; otherwise an existing table yields ErrExists.
	Create(ctx context.Context, t Table, replace bool, records ...arrow.Record) (Table, error)

	// Append commits batches to the named table and returns the new state.
	// Batches must already match the table schema.
	Append(ctx context.Context, name string, records ...arrow.Record) (Table, error)

	// Scan calls fn with each stored batch in commit order. Batches are
	// released after fn returns; fn must Retain anything it keeps.
	Scan(ctx context.Context, name string, fn func(arrow.Record) error) error

	// Delete removes the named table and its data.
	Delete(ctx context.Context, name string) error

	// Names lists table names in lexical order.
	Names(ctx context.Context) ([]string, error)
}
