// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render CREATE TABLE statements from that model.
//
// The renderer does not quote identifiers and treats ColumnDef.Default as raw
// SQL. Backends build a TableDef with FromTable, passing their own quoting
// and type mapping, and may wrap the rendered statement in dialect guards.
package ddl

import (
	"fmt"
	"strings"

	"staretl/internal/schema"
)

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// A column is rendered as
//
//	<Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
// followed by a PRIMARY KEY (<pk-cols>) clause for columns flagged as
// PrimaryKey, and one CONSTRAINT <name> FOREIGN KEY clause per foreign key.
// Primary-key columns are always NOT NULL.
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	lines := make([]string, 0, len(t.Columns)+1+len(t.ForeignKeys))
	pks := make([]string, 0, 1)
	names := make(map[string]struct{}, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		names[name] = struct{}{}

		var sb strings.Builder
		sb.WriteString(name)
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		lines = append(lines, sb.String())

		if c.PrimaryKey {
			pks = append(pks, name)
		}
	}

	if len(pks) > 0 {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	for _, fk := range t.ForeignKeys {
		if _, ok := names[fk.Column]; !ok {
			return "", fmt.Errorf("ddl: foreign key %s on unknown column %s", fk.Name, fk.Column)
		}
		if fk.RefTable == "" || fk.RefColumn == "" {
			return "", fmt.Errorf("ddl: foreign key %s has no target", fk.Name)
		}
		lines = append(lines, fmt.Sprintf(
			"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			fk.Name, fk.Column, fk.RefTable, fk.RefColumn,
		))
	}

	guard := ""
	if t.IfNotExists {
		guard = "IF NOT EXISTS "
	}
	return fmt.Sprintf(
		"CREATE TABLE %s%s (\n  %s\n);",
		guard,
		fqn,
		strings.Join(lines, ",\n  "),
	), nil
}

// FromTable converts a registered table into a TableDef using the dialect's
// identifier quoting and type mapping.
func FromTable(t schema.Table, quote func(string) string, mapType func(schema.Column) string) TableDef {
	td := TableDef{FQN: quote(t.Name)}
	for _, c := range t.Columns {
		td.Columns = append(td.Columns, ColumnDef{
			Name:       quote(c.Name),
			SQLType:    mapType(c),
			Nullable:   !c.NotNull,
			PrimaryKey: c.Name == t.PrimaryKey,
		})
	}
	for _, fk := range t.ForeignKeys {
		td.ForeignKeys = append(td.ForeignKeys, ForeignKeyDef{
			Name:      quote(fk.Name),
			Column:    quote(fk.Column),
			RefTable:  quote(fk.RefTable),
			RefColumn: quote(fk.RefColumn),
		})
	}
	return td
}
