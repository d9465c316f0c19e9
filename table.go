package vectable

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/helixml/vectable/application/service"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/search"
	"github.com/helixml/vectable/domain/table"
)

// EmbeddingDefinition binds a source column to a destination vector column
// through a registered embedding function.
type EmbeddingDefinition = embedding.Definition

// NewEmbeddingDefinition creates a definition. destColumn may be empty to
// have a name synthesized from the source column.
func NewEmbeddingDefinition(sourceColumn, function, destColumn string) EmbeddingDefinition {
	return embedding.NewDefinition(sourceColumn, function, destColumn)
}

// CreateMode governs how table creation treats an existing table.
type CreateMode = table.CreateMode

// Creation modes.
const (
	ModeCreate    = table.ModeCreate
	ModeOverwrite = table.ModeOverwrite
	ModeExistOk   = table.ModeExistOk
)

// Metric is a vector distance metric.
type Metric = search.Metric

// Distance metrics.
const (
	MetricCosine = search.MetricCosine
	MetricL2     = search.MetricL2
	MetricDot    = search.MetricDot
)

// DistanceColumn is appended to search results.
const DistanceColumn = search.DistanceColumn

// CreateTableBuilder configures a table before it is created.
type CreateTableBuilder struct {
	conn    *Connection
	name    string
	schema  *arrow.Schema
	mode    CreateMode
	defs    []EmbeddingDefinition
	records []arrow.Record
}

// Mode sets the creation mode. The default is ModeCreate.
func (b *CreateTableBuilder) Mode(m CreateMode) *CreateTableBuilder {
	b.mode = m
	return b
}

// AddEmbedding declares an embedding definition. It is checked against the
// registry and, when the schema is known, reconciled with the definitions
// added so far; on error the builder is left unchanged.
func (b *CreateTableBuilder) AddEmbedding(def EmbeddingDefinition) (*CreateTableBuilder, error) {
	if err := def.Validate(); err != nil {
		return b, err
	}
	if _, ok := b.conn.registry.Get(def.Name()); !ok {
		return b, &embedding.SchemaError{Column: def.SourceColumn(), Kind: embedding.ErrUnknownEmbeddingFunction, Detail: def.Name()}
	}

	defs := append(append([]EmbeddingDefinition(nil), b.defs...), def)
	if b.schema != nil {
		if _, err := embedding.Reconcile(b.schema, defs, b.conn.registry); err != nil {
			return b, err
		}
	}
	b.defs = defs
	return b, nil
}

// Data sets the initial batches. They are materialized before the table is
// stored.
func (b *CreateTableBuilder) Data(records ...arrow.Record) *CreateTableBuilder {
	b.records = append(b.records, records...)
	return b
}

// Execute creates the table.
func (b *CreateTableBuilder) Execute(ctx context.Context) (*Table, error) {
	if b.conn.closed.Load() {
		return nil, ErrClosed
	}
	created, err := b.conn.tables.Create(ctx, service.CreateRequest{
		Name:        b.name,
		Schema:      b.schema,
		Definitions: b.defs,
		Mode:        b.mode,
		Records:     b.records,
	})
	if err != nil {
		return nil, err
	}
	return &Table{conn: b.conn, name: created.Name()}, nil
}

// Table is a handle to a stored table. Metadata accessors read the latest
// committed version.
type Table struct {
	conn *Connection
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func (t *Table) load(ctx context.Context) (table.Table, error) {
	if t.conn.closed.Load() {
		return table.Table{}, ErrClosed
	}
	return t.conn.tables.Open(ctx, t.name)
}

// Add computes the vector columns of every batch and appends them as one new
// version. Nothing is written if any batch fails.
func (t *Table) Add(ctx context.Context, records ...arrow.Record) error {
	if t.conn.closed.Load() {
		return ErrClosed
	}
	_, err := t.conn.writer.Add(ctx, t.name, records...)
	return err
}

// Schema returns the table schema, including its embedding metadata.
func (t *Table) Schema(ctx context.Context) (*arrow.Schema, error) {
	meta, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	return meta.Schema(), nil
}

// EmbeddingDefinitions returns the table's resolved embedding definitions.
func (t *Table) EmbeddingDefinitions(ctx context.Context) ([]EmbeddingDefinition, error) {
	meta, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	return meta.Definitions(), nil
}

// CountRows returns the number of committed rows.
func (t *Table) CountRows(ctx context.Context) (int64, error) {
	meta, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	return meta.RowCount(), nil
}

// Version returns the committed version, starting at 1 on creation.
func (t *Table) Version(ctx context.Context) (int64, error) {
	meta, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	return meta.Version(), nil
}

// UpdatedAt returns when the table was last written.
func (t *Table) UpdatedAt(ctx context.Context) (time.Time, error) {
	meta, err := t.load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return meta.UpdatedAt(), nil
}

// Records returns every committed batch in commit order. The caller must
// release them.
func (t *Table) Records(ctx context.Context) ([]arrow.Record, error) {
	if t.conn.closed.Load() {
		return nil, ErrClosed
	}
	var out []arrow.Record
	err := t.conn.tables.Scan(ctx, t.name, func(rec arrow.Record) error {
		rec.Retain()
		out = append(out, rec)
		return nil
	})
	if err != nil {
		for _, rec := range out {
			rec.Release()
		}
		return nil, err
	}
	return out, nil
}

// Search starts a nearest-neighbour query. query is a raw value embedded
// with the searched column's function, or a []float32 / []float64 vector.
func (t *Table) Search(query any) *Query {
	return &Query{table: t, query: query}
}

// Query is a nearest-neighbour query under construction.
type Query struct {
	table *Table
	query any
	opts  []service.SearchOption
}

// Column selects the vector column. By default the destination of the
// table's first embedding definition is searched.
func (q *Query) Column(name string) *Query {
	q.opts = append(q.opts, service.WithColumn(name))
	return q
}

// Limit sets the maximum number of results.
func (q *Query) Limit(n int) *Query {
	q.opts = append(q.opts, service.WithLimit(n))
	return q
}

// Metric sets the distance metric. The default is MetricCosine.
func (q *Query) Metric(m Metric) *Query {
	q.opts = append(q.opts, service.WithMetric(m))
	return q
}

// Select limits the returned columns. DistanceColumn is always included.
func (q *Query) Select(columns ...string) *Query {
	q.opts = append(q.opts, service.WithSelect(columns...))
	return q
}

// Execute runs the query and returns the matching rows, nearest first. The
// caller must release the result.
func (q *Query) Execute(ctx context.Context) (arrow.Record, error) {
	if q.table.conn.closed.Load() {
		return nil, ErrClosed
	}
	return q.table.conn.searcher.Search(ctx, q.table.name, q.query, q.opts...)
}

// Metadata returns a snapshot of the table's committed metadata.
func (t *Table) Metadata(ctx context.Context) (table.Table, error) {
	return t.load(ctx)
}
