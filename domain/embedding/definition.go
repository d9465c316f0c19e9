package embedding

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MetadataKey is the schema metadata key under which a table's definitions are stored.
const MetadataKey = "embedding_functions"

// Definition binds a source column to a registered embedding function and a
// destination vector column. It is immutable once created.
type Definition struct {
	sourceColumn string
	name         string
	destColumn   string
	params       Params
}

// NewDefinition creates a definition. An empty destColumn lets the reconciler
// pick the destination name.
func NewDefinition(sourceColumn, name, destColumn string) Definition {
	return Definition{
		sourceColumn: sourceColumn,
		name:         name,
		destColumn:   destColumn,
	}
}

// WithParams returns a copy of the definition carrying construction parameters.
func (d Definition) WithParams(params Params) Definition {
	d.params = params.Clone()
	return d
}

// withDestColumn returns a copy with the destination column set.
func (d Definition) withDestColumn(name string) Definition {
	d.destColumn = name
	return d
}

// SourceColumn returns the source column name.
func (d Definition) SourceColumn() string { return d.sourceColumn }

// Name returns the registered embedding function name.
func (d Definition) Name() string { return d.name }

// DestColumn returns the destination column name, or "" if not yet resolved.
func (d Definition) DestColumn() string { return d.destColumn }

// HasDestColumn reports whether a destination column was given or resolved.
func (d Definition) HasDestColumn() bool { return d.destColumn != "" }

// Params returns a copy of the construction parameters.
func (d Definition) Params() Params { return d.params.Clone() }

// Validate checks the required fields are present.
func (d Definition) Validate() error {
	if d.sourceColumn == "" {
		return fmt.Errorf("%w: empty source column", ErrInvalidDefinition)
	}
	if d.name == "" {
		return fmt.Errorf("%w: empty function name for source %q", ErrInvalidDefinition, d.sourceColumn)
	}
	return nil
}

// Equal reports whether two definitions are identical.
func (d Definition) Equal(o Definition) bool {
	if d.sourceColumn != o.sourceColumn || d.name != o.name || d.destColumn != o.destColumn {
		return false
	}
	if len(d.params) == 0 && len(o.params) == 0 {
		return true
	}
	return reflect.DeepEqual(normalizeParams(d.params), normalizeParams(o.params))
}

// String implements fmt.Stringer.
func (d Definition) String() string {
	dest := d.destColumn
	if dest == "" {
		dest = "<auto>"
	}
	return fmt.Sprintf("%s(%s) -> %s", d.name, d.sourceColumn, dest)
}

// normalizeParams round-trips params through JSON so values decoded from
// metadata compare equal to values given in code (e.g. int vs float64).
func normalizeParams(p Params) Params {
	raw, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out Params
	if err := json.Unmarshal(raw, &out); err != nil {
		return p
	}
	return out
}

type definitionJSON struct {
	SourceColumn string `json:"source_column"`
	Name         string `json:"name"`
	DestColumn   string `json:"dest_column,omitempty"`
	Params       Params `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(definitionJSON{
		SourceColumn: d.sourceColumn,
		Name:         d.name,
		DestColumn:   d.destColumn,
		Params:       d.params,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw definitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Definition{
		sourceColumn: raw.SourceColumn,
		name:         raw.Name,
		destColumn:   raw.DestColumn,
		params:       raw.Params,
	}
	return nil
}

// EncodeDefinitions serializes definitions for table metadata.
func EncodeDefinitions(defs []Definition) (string, error) {
	if defs == nil {
		defs = []Definition{}
	}
	raw, err := json.Marshal(defs)
	if err != nil {
		return "", fmt.Errorf("encode embedding definitions: %w", err)
	}
	return string(raw), nil
}

// DecodeDefinitions parses definitions stored by EncodeDefinitions.
func DecodeDefinitions(s string) ([]Definition, error) {
	if s == "" {
		return []Definition{}, nil
	}
	var defs []Definition
	if err := json.Unmarshal([]byte(s), &defs); err != nil {
		return nil, fmt.Errorf("decode embedding definitions: %w", err)
	}
	return defs, nil
}

// EqualDefinitions reports whether two definition lists are identical and in the same order.
func EqualDefinitions(a, b []Definition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
