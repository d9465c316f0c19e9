// Package vectable provides embedding-aware tables on top of Apache Arrow.
//
// A table declares which of its vector columns are derived from source
// columns by named embedding functions. Vectors are computed when data is
// added and when a raw query is searched, so callers never pre-compute them.
//
// Basic usage:
//
//	conn, err := vectable.Connect(
//	    vectable.WithSQLite(".vectable/vectable.db"),
//	    vectable.WithBuiltins(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	builder, err := conn.CreateEmptyTable("docs", schema).
//	    AddEmbedding(vectable.NewEmbeddingDefinition("text", "hash", "vector"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	docs, err := builder.Execute(ctx)
//
//	// Vectors for "text" are computed on insert.
//	err = docs.Add(ctx, batch)
//
//	// The query string is embedded with the same function.
//	results, err := docs.Search("create a deployment").Limit(5).Execute(ctx)
//	defer results.Release()
package vectable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/application/service"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/infrastructure/persistence"
	"github.com/helixml/vectable/infrastructure/provider"
	"github.com/helixml/vectable/internal/database"
)

// Connection is an open handle to a table database. It shares one embedding
// registry with every table it opens.
type Connection struct {
	db       database.Database
	registry *embedding.Registry
	mem      memory.Allocator
	logger   *slog.Logger

	tables   *service.Tables
	writer   *service.Writer
	searcher *service.Searcher

	closed atomic.Bool
}

// Connect opens a connection with the given options. A database must be
// configured with WithSQLite, WithPostgres, WithDatabaseURL or WithConfig.
func Connect(opts ...Option) (*Connection, error) {
	cfg := newConnConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.app = cfg.app.Apply(cfg.overrides...)

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	mem := cfg.mem
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := database.NewDatabaseWithLogger(ctx, cfg.dbURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.AutoMigrate(ctx, db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	store := persistence.NewTableStore(db, mem)
	pipeline := embedding.NewPipeline(registry,
		embedding.WithAllocator(mem),
		embedding.WithLogger(logger),
		embedding.WithParallelism(cfg.app.Parallelism()),
	)

	conn := &Connection{
		db:       db,
		registry: registry,
		mem:      mem,
		logger:   logger,
		tables:   service.NewTables(store, registry, pipeline, mem, logger),
		writer:   service.NewWriter(store, pipeline, mem, logger),
		searcher: service.NewSearcher(store, embedding.NewQueryEmbedder(registry), mem, logger, cfg.app.SearchLimit()),
	}

	logger.Debug("connection opened",
		slog.Bool("postgres", db.IsPostgres()),
		slog.Int("functions", len(registry.Names())),
	)
	return conn, nil
}

// buildRegistry returns the shared registry, or a new one, with the built-ins
// and catalog aliases registered on it.
func buildRegistry(cfg *connConfig) (*embedding.Registry, error) {
	registry := cfg.registry
	if registry == nil {
		var opts []embedding.RegistryOption
		if cfg.app.AllowOverwrite() {
			opts = append(opts, embedding.WithAllowOverwrite())
		}
		registry = embedding.NewRegistry(opts...)
	}

	if cfg.builtins {
		if err := provider.RegisterBuiltins(registry, cfg.app); err != nil {
			return nil, fmt.Errorf("register builtin functions: %w", err)
		}
	}

	catalogs := cfg.catalogs
	if path := cfg.app.FunctionsFile(); path != "" {
		catalogs = append([]string{path}, catalogs...)
	}
	var regOpts []embedding.RegisterOption
	if cfg.app.AllowOverwrite() {
		regOpts = append(regOpts, embedding.WithOverwrite())
	}
	for _, path := range catalogs {
		catalog, err := provider.LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		if err := catalog.Register(registry, regOpts...); err != nil {
			return nil, fmt.Errorf("register catalog %s: %w", path, err)
		}
	}
	return registry, nil
}

// EmbeddingRegistry returns the registry shared by the connection's tables.
func (c *Connection) EmbeddingRegistry() *embedding.Registry {
	return c.registry
}

// Logger returns the connection's logger.
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// CreateTable starts creating a table. schema may be nil, in which case it
// is taken from the first batch passed to Data.
func (c *Connection) CreateTable(name string, schema *arrow.Schema) *CreateTableBuilder {
	return &CreateTableBuilder{conn: c, name: name, schema: schema, mode: ModeCreate}
}

// CreateEmptyTable starts creating a table with no initial data.
func (c *Connection) CreateEmptyTable(name string, schema *arrow.Schema) *CreateTableBuilder {
	return c.CreateTable(name, schema)
}

// OpenTable returns the named table.
func (c *Connection) OpenTable(ctx context.Context, name string) (*Table, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if _, err := c.tables.Open(ctx, name); err != nil {
		return nil, err
	}
	return &Table{conn: c, name: name}, nil
}

// TableNames lists the connection's tables in lexical order.
func (c *Connection) TableNames(ctx context.Context) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.tables.Names(ctx)
}

// DropTable deletes the named table and its data.
func (c *Connection) DropTable(ctx context.Context, name string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.tables.Drop(ctx, name)
}

// Close releases the database. The registry is left untouched so that other
// connections sharing it keep working.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.Debug("connection closed")
	return nil
}
