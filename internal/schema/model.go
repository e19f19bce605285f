// Package schema holds the registry of destination tables and the enforcer
// that conforms batches to them.
//
// The registry is built once at start-up and never mutated afterwards, so it
// is safe to share between goroutines without locking.
package schema

import (
	"fmt"
	"strings"
)

// Logical column types. Backends map them to concrete SQL types.
const (
	TypeInteger   = "integer"
	TypeNumeric   = "numeric"
	TypeText      = "text"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeBoolean   = "boolean"
)

// Column describes one destination column.
type Column struct {
	Name string
	Type string

	// Precision and Scale apply to TypeNumeric.
	Precision int
	Scale     int

	// Size bounds TypeText columns that take part in keys, for backends that
	// cannot index unbounded text.
	Size int

	// NotNull marks columns the destination declares NOT NULL.
	NotNull bool
}

// ForeignKey is a single-column reference to another table's primary key.
type ForeignKey struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
}

// Index is a secondary, single-column index.
type Index struct {
	Name   string
	Table  string
	Column string
}

// Table is the registered shape of one destination table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  string
	ForeignKeys []ForeignKey
}

// ColumnNames returns the ordered column names.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Registry maps table names to their registered shape.
type Registry struct {
	order   []string
	tables  map[string]Table
	indexes []Index
}

// NewRegistry validates tables and indexes and returns an immutable registry.
// Tables must be listed so that every foreign key points at an earlier table.
func NewRegistry(tables []Table, indexes []Index) (*Registry, error) {
	r := &Registry{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if err := validateTable(t, r.tables); err != nil {
			return nil, err
		}
		t.Columns = append([]Column(nil), t.Columns...)
		t.ForeignKeys = append([]ForeignKey(nil), t.ForeignKeys...)
		r.tables[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	for _, ix := range indexes {
		t, ok := r.tables[ix.Table]
		if !ok {
			return nil, fmt.Errorf("schema: index %s: unknown table %q", ix.Name, ix.Table)
		}
		if _, ok := t.Column(ix.Column); !ok {
			return nil, fmt.Errorf("schema: index %s: unknown column %s.%s", ix.Name, ix.Table, ix.Column)
		}
		r.indexes = append(r.indexes, ix)
	}
	return r, nil
}

func validateTable(t Table, known map[string]Table) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: table name must not be empty")
	}
	if _, dup := known[t.Name]; dup {
		return fmt.Errorf("schema: table %s registered twice", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %s has no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" || c.Name != strings.ToLower(c.Name) {
			return fmt.Errorf("schema: table %s: column names must be non-empty lower case, got %q", t.Name, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if _, ok := seen[t.PrimaryKey]; !ok {
		return fmt.Errorf("schema: table %s: primary key %q is not a column", t.Name, t.PrimaryKey)
	}
	for _, fk := range t.ForeignKeys {
		if _, ok := seen[fk.Column]; !ok {
			return fmt.Errorf("schema: %s: %s references missing column %s", t.Name, fk.Name, fk.Column)
		}
		ref, ok := known[fk.RefTable]
		if !ok {
			return fmt.Errorf("schema: %s: %s references %s, which must be registered first", t.Name, fk.Name, fk.RefTable)
		}
		if ref.PrimaryKey != fk.RefColumn {
			return fmt.Errorf("schema: %s: %s must reference the primary key of %s", t.Name, fk.Name, fk.RefTable)
		}
	}
	return nil
}

// Schema returns the ordered column list for table, or false when the table
// is not registered.
func (r *Registry) Schema(table string) ([]string, bool) {
	t, ok := r.tables[table]
	if !ok {
		return nil, false
	}
	return t.ColumnNames(), true
}

// Table returns the full definition of a registered table.
func (r *Registry) Table(name string) (Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns every table in creation order (referenced tables first).
func (r *Registry) Tables() []Table {
	out := make([]Table, len(r.order))
	for i, name := range r.order {
		out[i] = r.tables[name]
	}
	return out
}

// Indexes returns the registered secondary indexes.
func (r *Registry) Indexes() []Index {
	return append([]Index(nil), r.indexes...)
}
