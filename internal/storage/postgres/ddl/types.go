// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import (
	"fmt"

	"staretl/internal/schema"
)

// MapType maps a registered column to a Postgres SQL type.
//
//	integer   -> INTEGER
//	numeric   -> NUMERIC(p,s), or NUMERIC when no precision is set
//	date      -> DATE
//	timestamp -> TIMESTAMP WITHOUT TIME ZONE
//	boolean   -> BOOLEAN
//	text and anything else -> TEXT
func MapType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeNumeric:
		if c.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", c.Precision, c.Scale)
		}
		return "NUMERIC"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		return "TIMESTAMP WITHOUT TIME ZONE"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
