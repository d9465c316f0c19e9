package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the number of definitions computed at once per batch.
const DefaultParallelism = 4

// Pipeline fills in missing destination columns of record batches.
type Pipeline struct {
	registry    *Registry
	mem         memory.Allocator
	logger      *slog.Logger
	parallelism int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithAllocator sets the allocator used for computed vector columns.
func WithAllocator(mem memory.Allocator) PipelineOption {
	return func(p *Pipeline) {
		if mem != nil {
			p.mem = mem
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParallelism bounds how many definitions of one batch compute concurrently.
func WithParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// NewPipeline creates a materialization pipeline resolving functions from registry.
func NewPipeline(registry *Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry:    registry,
		mem:         memory.DefaultAllocator,
		logger:      slog.Default(),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// job is one destination column to compute for a batch.
type job struct {
	def    Definition
	fn     Function
	source arrow.Array
	vt     VectorType
	field  arrow.Field
	result arrow.Array
}

// Materialize returns rec with every missing destination column of defs
// computed and appended after the existing columns, in definition order.
//
// Columns already present in rec are never recomputed or overwritten. Each
// function is called once with the whole source column. On any error nothing
// is returned and all intermediate buffers are released.
//
// rec is not released; the caller must release the returned record.
func (p *Pipeline) Materialize(ctx context.Context, rec arrow.Record, defs []Definition) (arrow.Record, error) {
	return p.MaterializeInto(ctx, rec, nil, defs)
}

// MaterializeInto is Materialize for a batch written to a table with schema
// target. A computed column takes the field target declares for it, item
// field included, and a function whose dimension differs from that column
// fails with ErrDimensionMismatch. A nil target behaves like Materialize.
func (p *Pipeline) MaterializeInto(ctx context.Context, rec arrow.Record, target *arrow.Schema, defs []Definition) (arrow.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("materialize: nil record")
	}

	jobs, err := p.plan(rec, target, defs)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		rec.Retain()
		return rec, nil
	}

	if err := p.compute(ctx, jobs, int(rec.NumRows())); err != nil {
		releaseJobs(jobs)
		return nil, err
	}

	fields := make([]arrow.Field, 0, int(rec.NumCols())+len(jobs))
	fields = append(fields, rec.Schema().Fields()...)
	cols := make([]arrow.Array, 0, int(rec.NumCols())+len(jobs))
	cols = append(cols, rec.Columns()...)
	for _, j := range jobs {
		fields = append(fields, j.field)
		cols = append(cols, j.result)
	}

	md := rec.Schema().Metadata()
	out := array.NewRecord(arrow.NewSchema(fields, &md), cols, rec.NumRows())
	releaseJobs(jobs)
	return out, nil
}

// plan selects the definitions whose destination is missing from rec and
// resolves their functions and source columns.
func (p *Pipeline) plan(rec arrow.Record, target *arrow.Schema, defs []Definition) ([]*job, error) {
	schema := rec.Schema()
	jobs := make([]*job, 0, len(defs))

	for _, def := range defs {
		if !def.HasDestColumn() {
			return nil, &MaterializationError{Column: def.SourceColumn(), Kind: ErrInvalidDefinition, Detail: "destination column not resolved"}
		}
		dest := def.DestColumn()

		if schema.HasField(dest) {
			p.logger.Debug("using precomputed embeddings", slog.String("column", dest))
			continue
		}

		idx := schema.FieldIndices(def.SourceColumn())
		if len(idx) == 0 {
			return nil, &MaterializationError{Column: dest, Kind: ErrSourceColumnMissing, Detail: fmt.Sprintf("source %q not in batch", def.SourceColumn())}
		}
		source := rec.Column(idx[0])
		if n := source.NullN(); n > 0 {
			return nil, &MaterializationError{Column: dest, Kind: ErrSourceColumnHasNulls, Detail: fmt.Sprintf("%d null values in %q", n, def.SourceColumn())}
		}

		fn, err := p.registry.Create(def.Name(), def.Params())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &MaterializationError{Column: dest, Kind: ErrUnknownEmbeddingFunction, Cause: err}
			}
			return nil, fmt.Errorf("materialize %q: %w", dest, err)
		}

		vt, err := fn.DestType(source.DataType())
		if err != nil {
			return nil, &MaterializationError{Column: dest, Kind: ErrIncompatibleSourceType, Cause: err}
		}
		if err := vt.Validate(); err != nil {
			return nil, &MaterializationError{Column: dest, Kind: ErrIncompatibleDestType, Cause: err}
		}

		field, err := destField(target, dest, vt)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &job{def: def, fn: fn, source: source, vt: vt, field: field})
	}
	return jobs, nil
}

// compute runs every job, at most p.parallelism at a time. The first failure
// cancels the remaining computations.
func (p *Pipeline) compute(ctx context.Context, jobs []*job, rows int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for _, j := range jobs {
		g.Go(func() error {
			start := time.Now()

			var vectors [][]float32
			if rows > 0 {
				var err error
				vectors, err = j.fn.ComputeSourceEmbeddings(gctx, j.source)
				if err != nil {
					return &MaterializationError{Column: j.def.DestColumn(), Kind: ErrFunctionComputeFailed, Cause: err}
				}
			}

			if err := checkVectors(j.def.DestColumn(), vectors, rows, j.vt.Dimension); err != nil {
				return err
			}

			j.result = buildVectors(p.mem, j.field.Type.(*arrow.FixedSizeListType), vectors)
			p.logger.Debug("materialized embeddings",
				slog.String("column", j.def.DestColumn()),
				slog.String("function", j.def.Name()),
				slog.Int("rows", rows),
				slog.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("materialize: %w", ctxErr)
	}
	return err
}

// destField returns the field a computed column is stored under: the one
// target declares for dest, or a nullable field of vt when target has none.
func destField(target *arrow.Schema, dest string, vt VectorType) (arrow.Field, error) {
	field := arrow.Field{Name: dest, Type: vt.ArrowType(), Nullable: true}
	if target == nil {
		return field, nil
	}
	stored, ok := fieldByName(target.Fields(), dest)
	if !ok {
		return field, nil
	}

	fsl, ok := stored.Type.(*arrow.FixedSizeListType)
	if !ok || !arrow.TypeEqual(fsl.Elem(), vt.Element) {
		return arrow.Field{}, &MaterializationError{
			Column: dest,
			Kind:   ErrIncompatibleDestType,
			Detail: fmt.Sprintf("column stores %s, function produces %s", stored.Type, vt),
		}
	}
	if int(fsl.Len()) != vt.Dimension {
		return arrow.Field{}, &MaterializationError{
			Column: dest,
			Kind:   ErrDimensionMismatch,
			Detail: fmt.Sprintf("function produces %d values, column stores %d", vt.Dimension, fsl.Len()),
		}
	}
	return stored, nil
}

func checkVectors(column string, vectors [][]float32, rows, dimension int) error {
	if len(vectors) != rows {
		return &MaterializationError{
			Column: column,
			Kind:   ErrEmbeddingCountMismatch,
			Detail: fmt.Sprintf("got %d vectors for %d rows", len(vectors), rows),
		}
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return &MaterializationError{
				Column: column,
				Kind:   ErrDimensionMismatch,
				Detail: fmt.Sprintf("row %d has %d values, expected %d", i, len(v), dimension),
			}
		}
	}
	return nil
}

// buildVectors copies vectors into an array of type dt, whose values are Float32.
func buildVectors(mem memory.Allocator, dt *arrow.FixedSizeListType, vectors [][]float32) arrow.Array {
	b := array.NewFixedSizeListBuilderWithField(mem, dt.Len(), dt.ElemField())
	defer b.Release()

	values := b.ValueBuilder().(*array.Float32Builder)
	b.Reserve(len(vectors))
	values.Reserve(len(vectors) * int(dt.Len()))
	for _, v := range vectors {
		b.Append(true)
		values.AppendValues(v, nil)
	}
	return b.NewArray()
}

func releaseJobs(jobs []*job) {
	for _, j := range jobs {
		if j.result != nil {
			j.result.Release()
			j.result = nil
		}
	}
}
