package persistence

import "time"

// TableModel is the catalog row for one table.
type TableModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Schema      []byte    `gorm:"column:schema;not null"`
	Definitions string    `gorm:"column:definitions;type:text;not null"`
	Version     int64     `gorm:"column:version;not null"`
	RowCount    int64     `gorm:"column:row_count;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName returns the database table name.
func (TableModel) TableName() string { return "vectable_tables" }

// FragmentModel holds one committed record batch as an Arrow IPC stream.
type FragmentModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TableID   int64     `gorm:"column:table_id;index;not null"`
	Version   int64     `gorm:"column:version;not null"`
	RowCount  int64     `gorm:"column:row_count;not null"`
	Data      []byte    `gorm:"column:data;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the database table name.
func (FragmentModel) TableName() string { return "vectable_fragments" }
