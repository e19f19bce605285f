// Package ddl contains SQLite-specific helpers for generating DDL.
//
// SQLite only has storage classes and type affinities; the names returned
// here pick the affinity and keep the declared intent readable in the schema.
package ddl

import "staretl/internal/schema"

// MapType maps a registered column to a SQLite declared type.
func MapType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeNumeric:
		return "NUMERIC"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		return "TIMESTAMP"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
