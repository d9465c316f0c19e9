// Package embedding binds table columns to pluggable embedding functions.
//
// A Registry maps names to function factories. Definitions declared at table
// creation are validated against the table schema by Reconcile, and a Pipeline
// fills in missing vector columns of every batch written to the table. The
// QueryEmbedder turns raw search input into a vector with the same function.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Function computes embeddings for a source column.
//
// Implementations are stateless with respect to any table and may be shared
// by concurrent writers. Both compute calls may block on model inference and
// must honour ctx cancellation.
type Function interface {
	// SourceType is the element type the function expects for a single source value.
	SourceType() arrow.DataType

	// DestType returns the vector type produced for the given source column type.
	// It returns an error if the function cannot embed values of that type.
	DestType(source arrow.DataType) (VectorType, error)

	// ComputeSourceEmbeddings embeds every value of source in one call and
	// returns one vector per row, in row order.
	ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error)

	// ComputeQueryEmbeddings embeds a single raw query value.
	ComputeQueryEmbeddings(ctx context.Context, query any) ([]float32, error)
}

// VectorType describes a fixed-size vector column.
type VectorType struct {
	Element   arrow.DataType
	Dimension int
}

// NewVectorType creates a Float32 vector type of the given dimension.
func NewVectorType(dimension int) VectorType {
	return VectorType{Element: arrow.PrimitiveTypes.Float32, Dimension: dimension}
}

// ArrowType returns the FixedSizeList type used to store vectors of this type.
func (v VectorType) ArrowType() *arrow.FixedSizeListType {
	return arrow.FixedSizeListOf(int32(v.Dimension), v.Element)
}

// Matches reports whether dt is exactly this vector type: a FixedSizeList with
// the same element type and dimension. No widening is applied.
func (v VectorType) Matches(dt arrow.DataType) bool {
	fsl, ok := dt.(*arrow.FixedSizeListType)
	if !ok {
		return false
	}
	if int(fsl.Len()) != v.Dimension {
		return false
	}
	return arrow.TypeEqual(fsl.Elem(), v.Element)
}

// Validate checks that the vector type is well formed.
func (v VectorType) Validate() error {
	if v.Element == nil || v.Element.ID() != arrow.FLOAT32 {
		return fmt.Errorf("vector element type must be float32, got %v", v.Element)
	}
	if v.Dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", v.Dimension)
	}
	return nil
}

// String implements fmt.Stringer.
func (v VectorType) String() string {
	return v.ArrowType().String()
}

// Params holds construction parameters passed to a Factory.
type Params map[string]any

// GetString returns the parameter value for key, or fallback when absent.
func (p Params) GetString(key, fallback string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetInt returns the parameter value for key as an int, or fallback when absent
// or not numeric. JSON and YAML decoders produce float64 and int respectively,
// so both are accepted.
func (p Params) GetInt(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Clone returns a shallow copy of the parameters.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// RedactedValue replaces credential values in Params.Redacted.
const RedactedValue = "[redacted]"

var secretParamMarkers = []string{"key", "token", "secret", "password"}

// Redacted returns a copy of the parameters safe to show to clients: values
// under keys that look like credentials are replaced with RedactedValue.
func (p Params) Redacted() Params {
	out := p.Clone()
	for k := range out {
		lower := strings.ToLower(k)
		for _, marker := range secretParamMarkers {
			if strings.Contains(lower, marker) {
				out[k] = RedactedValue
				break
			}
		}
	}
	return out
}
