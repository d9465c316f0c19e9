package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"gorm.io/gorm"

	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/domain/table"
	"github.com/helixml/vectable/internal/database"
)

// TableStore implements table.Store on GORM. Table descriptions live in
// TableModel rows and each committed batch is one FragmentModel row.
type TableStore struct {
	db     database.Database
	mem    memory.Allocator
	mapper TableMapper
}

// NewTableStore creates a TableStore. Decoded batches are allocated from mem.
func NewTableStore(db database.Database, mem memory.Allocator) TableStore {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return TableStore{db: db, mem: mem}
}

// Find returns the named table or table.ErrNotFound.
func (s TableStore) Find(ctx context.Context, name string) (table.Table, error) {
	model, err := findTable(s.db.Session(ctx), name)
	if err != nil {
		return table.Table{}, err
	}
	return s.mapper.ToDomain(model)
}

// Exists reports whether the named table exists.
func (s TableStore) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.Session(ctx).Model(&TableModel{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check table %q exists: %w", name, err)
	}
	return count > 0, nil
}

// Create stores t and its initial batches in one transaction.
func (s TableStore) Create(ctx context.Context, t table.Table, replace bool, records ...arrow.Record) (table.Table, error) {
	if err := checkRecords(t.Schema(), records); err != nil {
		return table.Table{}, err
	}

	model, err := s.mapper.ToModel(t)
	if err != nil {
		return table.Table{}, err
	}
	model.ID = 0
	model.RowCount = 0

	created, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (TableModel, error) {
		existing, err := findTable(tx, t.Name())
		switch {
		case err == nil && !replace:
			return TableModel{}, fmt.Errorf("%w: %q", table.ErrExists, t.Name())
		case err == nil:
			if err := deleteTable(tx, existing.ID); err != nil {
				return TableModel{}, err
			}
		case !errors.Is(err, table.ErrNotFound):
			return TableModel{}, err
		}

		if err := tx.Create(&model).Error; err != nil {
			return TableModel{}, fmt.Errorf("create table %q: %w", t.Name(), err)
		}

		rows, err := s.insertFragments(tx, model.ID, model.Version, records)
		if err != nil {
			return TableModel{}, err
		}
		model.RowCount = rows
		if err := tx.Model(&model).Update("row_count", rows).Error; err != nil {
			return TableModel{}, fmt.Errorf("update table %q: %w", t.Name(), err)
		}
		return model, nil
	})
	if err != nil {
		return table.Table{}, err
	}
	return s.mapper.ToDomain(created)
}

// Append commits records to the named table as a new version.
func (s TableStore) Append(ctx context.Context, name string, records ...arrow.Record) (table.Table, error) {
	updated, err := database.WithTransactionResult(ctx, s.db, func(tx *gorm.DB) (TableModel, error) {
		model, err := findTable(tx, name)
		if err != nil {
			return TableModel{}, err
		}
		schema, err := DecodeSchema(model.Schema)
		if err != nil {
			return TableModel{}, err
		}
		if err := checkRecords(schema, records); err != nil {
			return TableModel{}, err
		}

		version := model.Version + 1
		rows, err := s.insertFragments(tx, model.ID, version, records)
		if err != nil {
			return TableModel{}, err
		}

		model.Version = version
		model.RowCount += rows
		model.UpdatedAt = time.Now().UTC()
		if err := tx.Model(&model).Updates(map[string]any{
			"version":    model.Version,
			"row_count":  model.RowCount,
			"updated_at": model.UpdatedAt,
		}).Error; err != nil {
			return TableModel{}, fmt.Errorf("update table %q: %w", name, err)
		}
		return model, nil
	})
	if err != nil {
		return table.Table{}, err
	}
	return s.mapper.ToDomain(updated)
}

// Scan calls fn with each batch of the table as of the call, in commit order.
// Batches committed while the scan runs are not visited. Fragments are
// loaded one at a time, so fn may use the store.
func (s TableStore) Scan(ctx context.Context, name string, fn func(arrow.Record) error) error {
	session := s.db.Session(ctx)
	model, err := findTable(session, name)
	if err != nil {
		return err
	}

	var ids []int64
	if err := session.Model(&FragmentModel{}).
		Where("table_id = ? AND version <= ?", model.ID, model.Version).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("list fragments of %q: %w", name, err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		var frag FragmentModel
		if err := s.db.Session(ctx).First(&frag, id).Error; err != nil {
			return fmt.Errorf("load fragment %d of %q: %w", id, name, err)
		}
		records, err := DecodeRecords(frag.Data, s.mem)
		if err != nil {
			return fmt.Errorf("fragment %d of %q: %w", id, name, err)
		}
		if err := visit(records, fn); err != nil {
			return err
		}
	}
	return nil
}

func visit(records []arrow.Record, fn func(arrow.Record) error) error {
	defer func() {
		for _, rec := range records {
			rec.Release()
		}
	}()
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the named table and all of its fragments.
func (s TableStore) Delete(ctx context.Context, name string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		model, err := findTable(tx, name)
		if err != nil {
			return err
		}
		return deleteTable(tx, model.ID)
	})
}

// Names lists table names in lexical order.
func (s TableStore) Names(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := s.db.Session(ctx).Model(&TableModel{}).Order("name ASC").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (s TableStore) insertFragments(tx *gorm.DB, tableID, version int64, records []arrow.Record) (int64, error) {
	var rows int64
	for _, rec := range records {
		if rec.NumRows() == 0 {
			continue
		}
		data, err := EncodeRecord(rec, s.mem)
		if err != nil {
			return 0, err
		}
		frag := FragmentModel{
			TableID:  tableID,
			Version:  version,
			RowCount: rec.NumRows(),
			Data:     data,
		}
		if err := tx.Create(&frag).Error; err != nil {
			return 0, fmt.Errorf("insert fragment: %w", err)
		}
		rows += rec.NumRows()
	}
	return rows, nil
}

func findTable(db *gorm.DB, name string) (TableModel, error) {
	var model TableModel
	err := db.Where("name = ?", name).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TableModel{}, fmt.Errorf("%w: %q", table.ErrNotFound, name)
	}
	if err != nil {
		return TableModel{}, fmt.Errorf("find table %q: %w", name, err)
	}
	return model, nil
}

func deleteTable(tx *gorm.DB, id int64) error {
	if err := tx.Where("table_id = ?", id).Delete(&FragmentModel{}).Error; err != nil {
		return fmt.Errorf("delete fragments: %w", err)
	}
	if err := tx.Delete(&TableModel{}, id).Error; err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	return nil
}

// ErrRecordSchema indicates a batch whose fields differ from the table schema.
var ErrRecordSchema = errors.New("record does not match table schema")

func checkRecords(schema *arrow.Schema, records []arrow.Record) error {
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: batch %d is nil", ErrRecordSchema, i)
		}
		if !embedding.SameFields(schema, rec.Schema()) {
			return fmt.Errorf("%w: batch %d has %s", ErrRecordSchema, i, rec.Schema())
		}
	}
	return nil
}
