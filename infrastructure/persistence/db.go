// Package persistence provides database storage implementations.
package persistence

import (
	"context"

	"github.com/helixml/vectable/internal/database"
)

// AutoMigrate creates or updates the catalog and fragment tables.
func AutoMigrate(ctx context.Context, db database.Database) error {
	return db.AutoMigrate(ctx,
		&TableModel{},
		&FragmentModel{},
	)
}
