package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/internal/testdb"
)

// letterFunction embeds text as the counts of 'a', 'b' and 'c'.
type letterFunction struct {
	calls atomic.Int64
	err   error
}

func (f *letterFunction) SourceType() arrow.DataType { return arrow.BinaryTypes.String }

func (f *letterFunction) DestType(source arrow.DataType) (embedding.VectorType, error) {
	if source.ID() != arrow.STRING {
		return embedding.VectorType{}, fmt.Errorf("letters embeds strings, got %s", source)
	}
	return embedding.NewVectorType(3), nil
}

func (f *letterFunction) ComputeSourceEmbeddings(_ context.Context, source arrow.Array) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	strs := source.(*array.String)
	out := make([][]float32, strs.Len())
	for i := range out {
		out[i] = letters(strs.Value(i))
	}
	return out, nil
}

func (f *letterFunction) ComputeQueryEmbeddings(_ context.Context, query any) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	text, ok := query.(string)
	if !ok {
		return nil, fmt.Errorf("letters query must be a string, got %T", query)
	}
	return letters(text), nil
}

func letters(s string) []float32 {
	return []float32{
		float32(strings.Count(s, "a")),
		float32(strings.Count(s, "b")),
		float32(strings.Count(s, "c")),
	}
}

var _ embedding.Function = (*letterFunction)(nil)

// wideLetters pads letterFunction vectors with two zeros.
type wideLetters struct {
	letterFunction
}

func (f *wideLetters) DestType(source arrow.DataType) (embedding.VectorType, error) {
	if _, err := f.letterFunction.DestType(source); err != nil {
		return embedding.VectorType{}, err
	}
	return embedding.NewVectorType(5), nil
}

func (f *wideLetters) ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error) {
	vectors, err := f.letterFunction.ComputeSourceEmbeddings(ctx, source)
	for i := range vectors {
		vectors[i] = append(vectors[i], 0, 0)
	}
	return vectors, err
}

func (f *wideLetters) ComputeQueryEmbeddings(ctx context.Context, query any) ([]float32, error) {
	v, err := f.letterFunction.ComputeQueryEmbeddings(ctx, query)
	if err != nil {
		return nil, err
	}
	return append(v, 0, 0), nil
}

type fixture struct {
	mem      *memory.CheckedAllocator
	fn       *letterFunction
	registry *embedding.Registry
	tables   *Tables
	writer   *Writer
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fn := &letterFunction{}
	registry := embedding.NewRegistry()
	require.NoError(t, registry.RegisterFunction("letters", fn))

	store := testdb.NewStore(t, mem)
	pipeline := embedding.NewPipeline(registry, embedding.WithAllocator(mem), embedding.WithLogger(logger))
	return &fixture{
		mem:      mem,
		fn:       fn,
		registry: registry,
		tables:   NewTables(store, registry, pipeline, mem, logger),
		writer:   NewWriter(store, pipeline, mem, logger),
		searcher: NewSearcher(store, embedding.NewQueryEmbedder(registry), mem, logger, 0),
	}
}

func docSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "text", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func lettersDef() embedding.Definition {
	return embedding.NewDefinition("text", "letters", "vector")
}

// docs builds an {id, text} batch. Ids start at first.
func (f *fixture) docs(t *testing.T, first int64, texts ...string) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(f.mem, docSchema())
	defer b.Release()
	for i, s := range texts {
		b.Field(0).(*array.Int64Builder).Append(first + int64(i))
		b.Field(1).(*array.StringBuilder).Append(s)
	}
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

// allIDs scans the table and returns its ids in commit order.
func (f *fixture) allIDs(t *testing.T, name string) []int64 {
	t.Helper()
	var ids []int64
	err := f.tables.Scan(context.Background(), name, func(rec arrow.Record) error {
		ids = append(ids, rec.Column(0).(*array.Int64).Int64Values()...)
		return nil
	})
	require.NoError(t, err)
	return ids
}

func (f *fixture) createDocs(t *testing.T, name string, records ...arrow.Record) {
	t.Helper()
	_, err := f.tables.Create(context.Background(), CreateRequest{
		Name:        name,
		Schema:      docSchema(),
		Definitions: []embedding.Definition{lettersDef()},
		Records:     records,
	})
	require.NoError(t, err)
}
