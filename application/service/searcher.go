package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/search"
	"github.com/helixml/vectable/domain/table"
	"github.com/helixml/vectable/internal/config"
)

// SearchOption configures a search request.
type SearchOption func(*searchConfig)

type searchConfig struct {
	column string
	limit  int
	metric search.Metric
	fields []string
}

// WithColumn selects the vector column to search.
func WithColumn(name string) SearchOption {
	return func(c *searchConfig) { c.column = name }
}

// WithLimit sets the maximum number of results.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithMetric sets the distance metric.
func WithMetric(m search.Metric) SearchOption {
	return func(c *searchConfig) {
		if m != "" {
			c.metric = m
		}
	}
}

// WithSelect limits the returned columns. The distance column is always added.
func WithSelect(columns ...string) SearchOption {
	return func(c *searchConfig) { c.fields = columns }
}

// Searcher runs nearest-neighbour queries with an exhaustive scan over a
// table's committed batches.
type Searcher struct {
	store        table.Store
	embedder     *embedding.QueryEmbedder
	mem          memory.Allocator
	logger       *slog.Logger
	defaultLimit int
}

// NewSearcher creates a Searcher. A non-positive defaultLimit selects
// config.DefaultSearchLimit.
func NewSearcher(store table.Store, embedder *embedding.QueryEmbedder, mem memory.Allocator, logger *slog.Logger, defaultLimit int) *Searcher {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLimit <= 0 {
		defaultLimit = config.DefaultSearchLimit
	}
	return &Searcher{store: store, embedder: embedder, mem: mem, logger: logger, defaultLimit: defaultLimit}
}

// Search returns the rows of the named table closest to query, nearest first,
// with their distance in search.DistanceColumn.
//
// query is either a vector ([]float32 or []float64) or a raw value embedded
// with the function bound to the searched column. Without WithColumn the
// destination of the first embedding definition is searched, or the first
// float32 vector column when the table has no definitions.
func (s *Searcher) Search(ctx context.Context, name string, query any, opts ...SearchOption) (arrow.Record, error) {
	cfg := searchConfig{limit: s.defaultLimit, metric: search.MetricCosine}
	for _, opt := range opts {
		opt(&cfg)
	}

	t, err := s.store.Find(ctx, name)
	if err != nil {
		return nil, err
	}
	schema := t.Schema()

	column, err := vectorColumn(t, cfg.column)
	if err != nil {
		return nil, err
	}
	projection, err := projectFields(schema, cfg.fields)
	if err != nil {
		return nil, err
	}

	vector, err := s.queryVector(ctx, t, column, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	idx := schema.FieldIndices(column)[0]
	top := search.NewTopK(cfg.limit)
	kept := make(map[int]arrow.Record)
	defer func() {
		for _, rec := range kept {
			rec.Release()
		}
	}()

	batch := 0
	err = s.store.Scan(ctx, name, func(rec arrow.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		bi := batch
		batch++

		if err := rankBatch(top, bi, rec.Column(idx), vector, cfg.metric); err != nil {
			return fmt.Errorf("search %q: %w", column, err)
		}

		referenced := top.Batches()
		if referenced[bi] {
			rec.Retain()
			kept[bi] = rec
		}
		for b, r := range kept {
			if !referenced[b] {
				r.Release()
				delete(kept, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.collect(schema, projection, top.Sorted(), kept)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("searched table",
		slog.String("table", name),
		slog.String("column", column),
		slog.String("metric", string(cfg.metric)),
		slog.Int("batches", batch),
		slog.Int64("results", result.NumRows()),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// vectorColumn resolves the searched column.
func vectorColumn(t table.Table, requested string) (string, error) {
	schema := t.Schema()
	if requested != "" {
		idx := schema.FieldIndices(requested)
		if len(idx) == 0 {
			return "", fmt.Errorf("%w: %q", table.ErrUnknownColumn, requested)
		}
		if !isVector(schema.Field(idx[0]).Type) {
			return "", fmt.Errorf("%w: %q is %s", ErrNoVectorColumn, requested, schema.Field(idx[0]).Type)
		}
		return requested, nil
	}

	if defs := t.Definitions(); len(defs) > 0 {
		return defs[0].DestColumn(), nil
	}
	for _, f := range schema.Fields() {
		if isVector(f.Type) {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: table %q", ErrNoVectorColumn, t.Name())
}

func isVector(dt arrow.DataType) bool {
	fsl, ok := dt.(*arrow.FixedSizeListType)
	return ok && fsl.Elem().ID() == arrow.FLOAT32
}

// queryVector returns query as a vector for column, embedding it when needed.
func (s *Searcher) queryVector(ctx context.Context, t table.Table, column string, query any) ([]float32, error) {
	schema := t.Schema()
	destType := schema.Field(schema.FieldIndices(column)[0]).Type
	dim := int(destType.(*arrow.FixedSizeListType).Len())

	var vector []float32
	switch q := query.(type) {
	case []float32:
		vector = q
	case []float64:
		vector = make([]float32, len(q))
		for i, v := range q {
			vector[i] = float32(v)
		}
	default:
		def, ok := t.Definition(column)
		if !ok {
			return nil, fmt.Errorf("%w: column %q has no embedding function, pass a vector", ErrQueryVector, column)
		}
		var sourceType arrow.DataType
		if idx := schema.FieldIndices(def.SourceColumn()); len(idx) > 0 {
			sourceType = schema.Field(idx[0]).Type
		}
		return s.embedder.EmbedForColumn(ctx, destType, sourceType, def, query)
	}

	if len(vector) != dim {
		return nil, fmt.Errorf("%w: got %d values, column %q has %d", ErrQueryVector, len(vector), column, dim)
	}
	return vector, nil
}

func rankBatch(top *search.TopK, batch int, col arrow.Array, query []float32, metric search.Metric) error {
	list, ok := col.(*array.FixedSizeList)
	if !ok {
		return fmt.Errorf("stored column is %s, not a vector", col.DataType())
	}
	values, ok := list.ListValues().(*array.Float32)
	if !ok {
		return fmt.Errorf("stored vectors are %s, not float32", list.ListValues().DataType())
	}
	data := values.Float32Values()
	for row := 0; row < list.Len(); row++ {
		if list.IsNull(row) {
			continue
		}
		start, end := list.ValueOffsets(row)
		top.Push(search.Match{Batch: batch, Row: row, Distance: metric.Distance(query, data[start:end])})
	}
	return nil
}

// projectFields returns the indices of the requested columns, or of every
// column when none are requested.
func projectFields(schema *arrow.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		out := make([]int, schema.NumFields())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	out := make([]int, 0, len(columns))
	for _, name := range columns {
		if name == search.DistanceColumn {
			continue
		}
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: %q", table.ErrUnknownColumn, name)
		}
		out = append(out, idx[0])
	}
	return out, nil
}

// collect gathers the matched rows into one record with a distance column.
func (s *Searcher) collect(schema *arrow.Schema, projection []int, matches []search.Match, kept map[int]arrow.Record) (arrow.Record, error) {
	fields := make([]arrow.Field, 0, len(projection)+1)
	cols := make([]arrow.Array, 0, len(projection)+1)
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for _, fi := range projection {
		field := schema.Field(fi)
		col, err := s.gather(field.Type, fi, matches, kept)
		if err != nil {
			release()
			return nil, fmt.Errorf("collect %q: %w", field.Name, err)
		}
		fields = append(fields, field)
		cols = append(cols, col)
	}

	db := array.NewFloat32Builder(s.mem)
	for _, m := range matches {
		db.Append(float32(m.Distance))
	}
	fields = append(fields, arrow.Field{Name: search.DistanceColumn, Type: arrow.PrimitiveTypes.Float32})
	cols = append(cols, db.NewArray())
	db.Release()

	out := array.NewRecord(arrow.NewSchema(fields, nil), cols, int64(len(matches)))
	release()
	return out, nil
}

func (s *Searcher) gather(dt arrow.DataType, field int, matches []search.Match, kept map[int]arrow.Record) (arrow.Array, error) {
	if len(matches) == 0 {
		return array.MakeArrayOfNull(s.mem, dt, 0), nil
	}
	parts := make([]arrow.Array, len(matches))
	for i, m := range matches {
		parts[i] = array.NewSlice(kept[m.Batch].Column(field), int64(m.Row), int64(m.Row+1))
	}
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()
	return array.Concatenate(parts, s.mem)
}
