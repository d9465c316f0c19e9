// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
)

// CreateRequest describes a table to create.
type CreateRequest struct {
	Name        string
	Schema      *arrow.Schema
	Definitions []embedding.Definition
	Mode        table.CreateMode
	Records     []arrow.Record
}

// Tables manages table lifecycle: creation under a mode, lookup and removal.
type Tables struct {
	store    table.Store
	registry *embedding.Registry
	pipeline *embedding.Pipeline
	mem      memory.Allocator
	logger   *slog.Logger
}

// NewTables creates a Tables service.
func NewTables(store table.Store, registry *embedding.Registry, pipeline *embedding.Pipeline, mem memory.Allocator, logger *slog.Logger) *Tables {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tables{store: store, registry: registry, pipeline: pipeline, mem: mem, logger: logger}
}

// Create reconciles the request's definitions with its schema and applies the
// creation mode. Initial records are materialized before anything is stored,
// so a failure leaves no table behind (and, under ModeOverwrite, the old one
// untouched).
//
// When Schema is nil it is taken from the first record.
func (s *Tables) Create(ctx context.Context, req CreateRequest) (table.Table, error) {
	if err := table.ValidateName(req.Name); err != nil {
		return table.Table{}, err
	}

	schema := req.Schema
	if schema == nil {
		if len(req.Records) == 0 || req.Records[0] == nil {
			return table.Table{}, ErrNoSchema
		}
		schema = req.Records[0].Schema()
	}

	reconciled, err := embedding.Reconcile(schema, req.Definitions, s.registry)
	if err != nil {
		return table.Table{}, err
	}

	switch req.Mode {
	case table.ModeCreate:
		exists, err := s.store.Exists(ctx, req.Name)
		if err != nil {
			return table.Table{}, err
		}
		if exists {
			return table.Table{}, fmt.Errorf("%w: %q", ErrTableExists, req.Name)
		}
	case table.ModeExistOk:
		existing, err := s.store.Find(ctx, req.Name)
		if err == nil {
			return s.existing(existing, reconciled)
		}
		if !errors.Is(err, table.ErrNotFound) {
			return table.Table{}, err
		}
	case table.ModeOverwrite:
	default:
		return table.Table{}, fmt.Errorf("unknown create mode %d", req.Mode)
	}

	records, err := prepare(ctx, s.pipeline, s.mem, reconciled.Schema(), reconciled.Definitions(), req.Records)
	if err != nil {
		return table.Table{}, err
	}
	defer releaseAll(records)

	desc := table.New(req.Name, reconciled.Schema(), reconciled.Definitions())
	created, err := s.store.Create(ctx, desc, req.Mode == table.ModeOverwrite, records...)
	if errors.Is(err, table.ErrExists) && req.Mode == table.ModeExistOk {
		existing, findErr := s.store.Find(ctx, req.Name)
		if findErr != nil {
			return table.Table{}, errors.Join(err, findErr)
		}
		return s.existing(existing, reconciled)
	}
	if err != nil {
		return table.Table{}, err
	}

	s.logger.Info("created table",
		slog.String("table", created.Name()),
		slog.String("mode", req.Mode.String()),
		slog.Int("definitions", len(created.Definitions())),
		slog.Int64("rows", created.RowCount()),
	)
	return created, nil
}

func (s *Tables) existing(existing table.Table, reconciled embedding.Reconciled) (table.Table, error) {
	if !existing.Matches(reconciled.Schema(), reconciled.Definitions()) {
		return table.Table{}, fmt.Errorf("%w: table %q exists with a different schema or embedding definitions", ErrSchemaMismatch, existing.Name())
	}
	s.logger.Debug("opened existing table", slog.String("table", existing.Name()))
	return existing, nil
}

// Open returns the named table.
func (s *Tables) Open(ctx context.Context, name string) (table.Table, error) {
	return s.store.Find(ctx, name)
}

// Drop deletes the named table and its data.
func (s *Tables) Drop(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("dropped table", slog.String("table", name))
	return nil
}

// Names lists table names in lexical order.
func (s *Tables) Names(ctx context.Context) ([]string, error) {
	return s.store.Names(ctx)
}

// Scan calls fn with each committed batch of the named table.
func (s *Tables) Scan(ctx context.Context, name string, fn func(arrow.Record) error) error {
	return s.store.Scan(ctx, name, fn)
}
