package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

// stubFunction embeds a string as [len(s), fill, fill, ...].
type stubFunction struct {
	dim   int
	fill  float32
	calls atomic.Int64
	rows  atomic.Int64

	// Fault injection.
	err          error
	dropLast     bool
	shortVectors bool
	block        bool
}

func newStub(dim int) *stubFunction {
	return &stubFunction{dim: dim, fill: 0.5}
}

func (s *stubFunction) SourceType() arrow.DataType { return arrow.BinaryTypes.String }

func (s *stubFunction) DestType(source arrow.DataType) (VectorType, error) {
	if source.ID() != arrow.STRING {
		return VectorType{}, fmt.Errorf("stub embeds strings, got %s", source)
	}
	return NewVectorType(s.dim), nil
}

func (s *stubFunction) ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error) {
	s.calls.Add(1)
	s.rows.Add(int64(source.Len()))

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}

	strs := source.(*array.String)
	out := make([][]float32, 0, strs.Len())
	for i := 0; i < strs.Len(); i++ {
		out = append(out, s.vector(strs.Value(i)))
	}
	if s.dropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *stubFunction) ComputeQueryEmbeddings(_ context.Context, query any) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	text, ok := query.(string)
	if !ok {
		return nil, fmt.Errorf("stub query must be a string, got %T", query)
	}
	return s.vector(text), nil
}

func (s *stubFunction) vector(text string) []float32 {
	n := s.dim
	if s.shortVectors {
		n--
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = s.fill
	}
	if n > 0 {
		v[0] = float32(len(text))
	}
	return v
}

var _ Function = (*stubFunction)(nil)

func baseSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "text", Type: arrow.BinaryTypes.String},
	}, nil)
}

func registryWith(t *testing.T, name string, fn Function) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterFunction(name, fn))
	return reg
}

func ptr(s string) *string { return &s }

// textBatch builds an {id, text} record. A nil entry in texts becomes a null.
func textBatch(t *testing.T, mem memory.Allocator, texts ...*string) arrow.Record {
	t.Helper()

	ids := array.NewInt32Builder(mem)
	defer ids.Release()
	strs := array.NewStringBuilder(mem)
	defer strs.Release()

	for i, s := range texts {
		ids.Append(int32(i + 1))
		if s == nil {
			strs.AppendNull()
			continue
		}
		strs.Append(*s)
	}

	idArr := ids.NewArray()
	defer idArr.Release()
	textArr := strs.NewArray()
	defer textArr.Release()

	return array.NewRecord(baseSchema(), []arrow.Array{idArr, textArr}, int64(len(texts)))
}

// vectorColumn builds a FixedSizeList<Float32> column from vectors.
func vectorColumn(mem memory.Allocator, dim int, vectors ...[]float32) arrow.Array {
	return buildVectors(mem, NewVectorType(dim).ArrowType(), vectors)
}

// rowVector returns row i of a FixedSizeList<Float32> column.
func rowVector(t *testing.T, col arrow.Array, i int) []float32 {
	t.Helper()
	fsl, ok := col.(*array.FixedSizeList)
	require.True(t, ok, "expected FixedSizeList, got %T", col)
	dim := int(fsl.DataType().(*arrow.FixedSizeListType).Len())
	values := fsl.ListValues().(*array.Float32)
	start := (fsl.Offset() + i) * dim
	out := make([]float32, dim)
	for j := 0; j < dim; j++ {
		out[j] = values.Value(start + j)
	}
	return out
}
