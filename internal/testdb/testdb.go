// Package testdb provides a shared test database helper for fast,
// realistic testing against an in-memory SQLite database.
package testdb

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/helixml/vectable/infrastructure/persistence"
	"github.com/helixml/vectable/internal/database"
)

// New creates an in-memory SQLite database with the catalog migrated.
// The database is automatically closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.New: open database: %v", err)
	}
	if err := persistence.AutoMigrate(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewStore creates a table store over a fresh in-memory database. Decoded
// batches come from mem; pass a checked allocator to catch leaks.
func NewStore(t *testing.T, mem memory.Allocator) persistence.TableStore {
	t.Helper()
	return persistence.NewTableStore(New(t), mem)
}
