package table

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/helixml/vectable/domain/embedding"
)

var (
	// ErrNotFound indicates no table with the given name exists.
	ErrNotFound = errors.New("table not found")
	// ErrExists indicates a table with the given name already exists.
	ErrExists = errors.New("table already exists")
	// ErrInvalidName indicates a table name that cannot be stored.
	ErrInvalidName = errors.New("invalid table name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// ValidateName checks a table name is non-empty and limited to letters,
// digits, underscores, hyphens and periods.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Table is the persisted description of a table. Its definitions are
// immutable for the table's lifetime.
type Table struct {
	id          int64
	name        string
	schema      *arrow.Schema
	definitions []embedding.Definition
	version     int64
	rowCount    int64
	createdAt   time.Time
	updatedAt   time.Time
}

// New creates a table description at version 1 with no rows.
func New(name string, schema *arrow.Schema, definitions []embedding.Definition) Table {
	now := time.Now().UTC()
	return Table{
		name:        name,
		schema:      schema,
		definitions: cloneDefinitions(definitions),
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}
}

// Reconstruct rebuilds a Table from stored state.
func Reconstruct(
	id int64,
	name string,
	schema *arrow.Schema,
	definitions []embedding.Definition,
	version, rowCount int64,
	createdAt, updatedAt time.Time,
) Table {
	return Table{
		id:          id,
		name:        name,
		schema:      schema,
		definitions: cloneDefinitions(definitions),
		version:     version,
		rowCount:    rowCount,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the storage identifier, or 0 if the table was never saved.
func (t Table) ID() int64 { return t.id }

// Name returns the table name.
func (t Table) Name() string { return t.name }

// Schema returns the table schema, including vector columns.
func (t Table) Schema() *arrow.Schema { return t.schema }

// Definitions returns a copy of the table's embedding definitions.
func (t Table) Definitions() []embedding.Definition { return cloneDefinitions(t.definitions) }

// Version returns the table version. Every committed write bumps it.
func (t Table) Version() int64 { return t.version }

// RowCount returns the number of committed rows.
func (t Table) RowCount() int64 { return t.rowCount }

// CreatedAt returns when the table was first created.
func (t Table) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns when the table was last written.
func (t Table) UpdatedAt() time.Time { return t.updatedAt }

// Definition returns the definition writing destColumn.
func (t Table) Definition(destColumn string) (embedding.Definition, bool) {
	for _, d := range t.definitions {
		if d.DestColumn() == destColumn {
			return d, true
		}
	}
	return embedding.Definition{}, false
}

// Matches reports whether t already has exactly the given schema fields and definitions.
func (t Table) Matches(schema *arrow.Schema, definitions []embedding.Definition) bool {
	return embedding.SameFields(t.schema, schema) && embedding.EqualDefinitions(t.definitions, definitions)
}

func cloneDefinitions(defs []embedding.Definition) []embedding.Definition {
	out := make([]embedding.Definition, len(defs))
	copy(out, defs)
	return out
}
