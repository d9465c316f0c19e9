package jsonapi

import (
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// Resource types.
const (
	TypeTable    = "table"
	TypeFunction = "function"
)

// FieldAttributes describes one schema field.
type FieldAttributes struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// DefinitionAttributes describes one embedding definition.
type DefinitionAttributes struct {
	SourceColumn string           `json:"source_column"`
	Function     string           `json:"function"`
	DestColumn   string           `json:"dest_column"`
	Params       embedding.Params `json:"params,omitempty"`
}

// TableAttributes describes a table.
type TableAttributes struct {
	Name        string                 `json:"name"`
	Version     int64                  `json:"version"`
	Rows        int64                  `json:"rows"`
	Fields      []FieldAttributes      `json:"fields"`
	Definitions []DefinitionAttributes `json:"embedding_functions"`
	UpdatedAt   DateTime               `json:"updated_at"`
}

// TableResource serializes a table with its schema and definitions.
func TableResource(t table.Table) *Resource {
	schema := t.Schema()
	fields := make([]FieldAttributes, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		fields = append(fields, FieldAttributes{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable})
	}

	defs := t.Definitions()
	attrs := make([]DefinitionAttributes, 0, len(defs))
	for _, d := range defs {
		attrs = append(attrs, DefinitionAttributes{
			SourceColumn: d.SourceColumn(),
			Function:     d.Name(),
			DestColumn:   d.DestColumn(),
			Params:       d.Params().Redacted(),
		})
	}

	return NewResource(TypeTable, t.Name(), TableAttributes{
		Name:        t.Name(),
		Version:     t.Version(),
		Rows:        t.RowCount(),
		Fields:      fields,
		Definitions: attrs,
		UpdatedAt:   DateTime(t.UpdatedAt()),
	})
}

// NameResources serializes resources identified only by name.
func NameResources(resourceType string, names []string) []*Resource {
	out := make([]*Resource, 0, len(names))
	for _, name := range names {
		out = append(out, NewResource(resourceType, name, map[string]string{"name": name}))
	}
	return out
}
