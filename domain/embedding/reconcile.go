package embedding

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// DefaultDestSuffix is appended to the source column name when a definition
// omits its destination and is the only such definition for that source.
const DefaultDestSuffix = "_embedding"

// Reconciled is the outcome of reconciling a schema with embedding definitions.
type Reconciled struct {
	schema      *arrow.Schema
	definitions []Definition
}

// Schema returns the augmented schema. Its metadata carries the definitions
// under MetadataKey.
func (r Reconciled) Schema() *arrow.Schema { return r.schema }

// Definitions returns the validated definitions in declaration order, each
// with its destination column resolved.
func (r Reconciled) Definitions() []Definition {
	out := make([]Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Reconcile validates defs against schema and returns the schema augmented
// with any destination columns that do not exist yet.
//
// Definitions are processed in order. Each one must name an existing source
// column and a function known to the registry. An existing destination column
// must have exactly the function's vector type; a missing one is appended as a
// nullable field. Reconcile performs no I/O, and reconciling its own output
// with the same definitions yields the same schema.
func Reconcile(schema *arrow.Schema, defs []Definition, registry *Registry) (Reconciled, error) {
	if schema == nil {
		return Reconciled{}, fmt.Errorf("reconcile: nil schema")
	}
	if registry == nil {
		return Reconciled{}, fmt.Errorf("reconcile: nil registry")
	}

	implicit := make(map[string]int)
	for _, def := range defs {
		if !def.HasDestColumn() {
			implicit[def.SourceColumn()]++
		}
	}

	fields := make([]arrow.Field, 0, schema.NumFields()+len(defs))
	fields = append(fields, schema.Fields()...)
	claimed := make(map[string]Definition, len(defs))
	resolved := make([]Definition, 0, len(defs))

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return Reconciled{}, &SchemaError{Column: def.SourceColumn(), Kind: ErrInvalidDefinition, Cause: err}
		}

		source, ok := fieldByName(schema.Fields(), def.SourceColumn())
		if !ok {
			return Reconciled{}, &SchemaError{Column: def.SourceColumn(), Kind: ErrSourceColumnMissing}
		}

		vt, err := destTypeFor(registry, def, source.Type)
		if err != nil {
			return Reconciled{}, err
		}

		explicit := def.HasDestColumn()
		dest := def.DestColumn()
		if !explicit {
			dest = destColumnName(def, implicit)
		}

		if prev, taken := claimed[dest]; taken {
			return Reconciled{}, &SchemaError{
				Column: dest,
				Kind:   ErrDestNameCollision,
				Detail: fmt.Sprintf("already the destination of %s", prev),
			}
		}
		if dest == def.SourceColumn() {
			return Reconciled{}, &SchemaError{Column: dest, Kind: ErrDestNameCollision, Detail: "destination equals source column"}
		}

		if existing, found := fieldByName(fields, dest); found {
			if !vt.Matches(existing.Type) {
				kind := ErrIncompatibleDestType
				if !explicit {
					kind = ErrDestNameCollision
				}
				return Reconciled{}, &SchemaError{
					Column: dest,
					Kind:   kind,
					Detail: fmt.Sprintf("existing type %s, function produces %s", existing.Type, vt),
				}
			}
		} else {
			fields = append(fields, arrow.Field{Name: dest, Type: vt.ArrowType(), Nullable: true})
		}

		resolvedDef := def.withDestColumn(dest)
		claimed[dest] = resolvedDef
		resolved = append(resolved, resolvedDef)
	}

	md, err := withDefinitions(schema.Metadata(), resolved)
	if err != nil {
		return Reconciled{}, err
	}

	return Reconciled{
		schema:      arrow.NewSchema(fields, &md),
		definitions: resolved,
	}, nil
}

// destTypeFor resolves the definition's function and asks it for the vector
// type it produces from the given source type.
func destTypeFor(registry *Registry, def Definition, sourceType arrow.DataType) (VectorType, error) {
	fn, err := registry.Create(def.Name(), def.Params())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return VectorType{}, &SchemaError{Column: def.SourceColumn(), Kind: ErrUnknownEmbeddingFunction, Cause: err}
		}
		return VectorType{}, fmt.Errorf("resolve %s: %w", def, err)
	}

	vt, err := fn.DestType(sourceType)
	if err != nil {
		return VectorType{}, &SchemaError{Column: def.SourceColumn(), Kind: ErrIncompatibleSourceType, Cause: err}
	}
	if err := vt.Validate(); err != nil {
		return VectorType{}, &SchemaError{Column: def.SourceColumn(), Kind: ErrIncompatibleDestType, Cause: err}
	}
	return vt, nil
}

// destColumnName synthesizes a destination name. A source embedded by a single
// implicit definition gets "<source>_embedding"; otherwise the function name
// disambiguates: "<source>_<function>".
func destColumnName(def Definition, implicit map[string]int) string {
	if implicit[def.SourceColumn()] <= 1 {
		return def.SourceColumn() + DefaultDestSuffix
	}
	return def.SourceColumn() + "_" + def.Name()
}

// DefinitionsFromSchema reads the definitions stored in schema metadata.
func DefinitionsFromSchema(schema *arrow.Schema) ([]Definition, error) {
	if schema == nil {
		return []Definition{}, nil
	}
	md := schema.Metadata()
	idx := md.FindKey(MetadataKey)
	if idx < 0 {
		return []Definition{}, nil
	}
	return DecodeDefinitions(md.Values()[idx])
}

// SameFields reports whether two schemas have the same fields (name, type and
// nullability) in the same order. Schema-level metadata is ignored.
func SameFields(a, b *arrow.Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name || fa.Nullable != fb.Nullable || !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
	}
	return true
}

func fieldByName(fields []arrow.Field, name string) (arrow.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return arrow.Field{}, false
}

func withDefinitions(md arrow.Metadata, defs []Definition) (arrow.Metadata, error) {
	encoded, err := EncodeDefinitions(defs)
	if err != nil {
		return arrow.Metadata{}, err
	}

	keys := make([]string, 0, md.Len()+1)
	values := make([]string, 0, md.Len()+1)
	for i, k := range md.Keys() {
		if k == MetadataKey {
			continue
		}
		keys = append(keys, k)
		values = append(values, md.Values()[i])
	}
	keys = append(keys, MetadataKey)
	values = append(values, encoded)
	return arrow.NewMetadata(keys, values), nil
}
