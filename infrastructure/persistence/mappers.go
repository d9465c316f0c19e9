package persistence

import (
	"fmt"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// TableMapper maps between domain Table and persistence TableModel.
type TableMapper struct{}

// ToDomain converts a TableModel to a domain Table.
func (m TableMapper) ToDomain(e TableModel) (table.Table, error) {
	schema, err := DecodeSchema(e.Schema)
	if err != nil {
		return table.Table{}, fmt.Errorf("table %q: %w", e.Name, err)
	}
	defs, err := embedding.DecodeDefinitions(e.Definitions)
	if err != nil {
		return table.Table{}, fmt.Errorf("table %q: %w", e.Name, err)
	}
	return table.Reconstruct(e.ID, e.Name, schema, defs, e.Version, e.RowCount, e.CreatedAt, e.UpdatedAt), nil
}

// ToModel converts a domain Table to a TableModel.
func (m TableMapper) ToModel(t table.Table) (TableModel, error) {
	schema, err := EncodeSchema(t.Schema())
	if err != nil {
		return TableModel{}, fmt.Errorf("table %q: %w", t.Name(), err)
	}
	defs, err := embedding.EncodeDefinitions(t.Definitions())
	if err != nil {
		return TableModel{}, fmt.Errorf("table %q: %w", t.Name(), err)
	}
	return TableModel{
		ID:          t.ID(),
		Name:        t.Name(),
		Schema:      schema,
		Definitions: defs,
		Version:     t.Version(),
		RowCount:    t.RowCount(),
		CreatedAt:   t.CreatedAt(),
		UpdatedAt:   t.UpdatedAt(),
	}, nil
}
