// Package table models persisted tables: their schema, embedding definitions,
// and the storage port the application layer writes through.
package table

import (
	"fmt"
	"strings"
)

// CreateMode governs how table creation treats an existing table of the same name.
type CreateMode int

// CreateMode values.
const (
	// ModeCreate fails when the table already exists.
	ModeCreate CreateMode = iota
	// ModeOverwrite discards any existing schema, definitions and data.
	ModeOverwrite
	// ModeExistOk reuses an existing table when its schema and definitions
	// equal the requested ones.
	ModeExistOk
)

// String implements fmt.Stringer.
func (m CreateMode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeOverwrite:
		return "overwrite"
	case ModeExistOk:
		return "exist_ok"
	default:
		return fmt.Sprintf("CreateMode(%d)", int(m))
	}
}

// ParseCreateMode parses "create", "overwrite" or "exist_ok" (also "exist-ok").
// The empty string means ModeCreate.
func ParseCreateMode(s string) (CreateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "create":
		return ModeCreate, nil
	case "overwrite":
		return ModeOverwrite, nil
	case "exist_ok", "exist-ok", "existok":
		return ModeExistOk, nil
	default:
		return ModeCreate, fmt.Errorf("unknown create mode %q", s)
	}
}
