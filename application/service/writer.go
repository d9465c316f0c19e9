package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// Writer appends record batches to tables, computing their vector columns.
type Writer struct {
	store    table.Store
	pipeline *embedding.Pipeline
	mem      memory.Allocator
	logger   *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(store table.Store, pipeline *embedding.Pipeline, mem memory.Allocator, logger *slog.Logger) *Writer {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, pipeline: pipeline, mem: mem, logger: logger}
}

// Add materializes every batch against the table's definitions, then commits
// them together as one new version. If any batch fails nothing is committed.
// Adding no batches returns the table unchanged.
func (w *Writer) Add(ctx context.Context, name string, records ...arrow.Record) (table.Table, error) {
	t, err := w.store.Find(ctx, name)
	if err != nil {
		return table.Table{}, err
	}
	if len(records) == 0 {
		return t, nil
	}

	start := time.Now()
	prepared, err := prepare(ctx, w.pipeline, w.mem, t.Schema(), t.Definitions(), records)
	if err != nil {
		return table.Table{}, err
	}
	defer releaseAll(prepared)

	updated, err := w.store.Append(ctx, name, prepared...)
	if err != nil {
		return table.Table{}, err
	}

	w.logger.Info("added rows",
		slog.String("table", name),
		slog.Int64("rows", countRows(prepared)),
		slog.Int64("version", updated.Version()),
		slog.Duration("duration", time.Since(start)),
	)
	return updated, nil
}
