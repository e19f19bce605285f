// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import (
	"fmt"

	"staretl/internal/schema"
)

// MapType maps a registered column to a MySQL column type. Sized text maps
// to VARCHAR so it can serve as a key.
func MapType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInteger:
		return "INT"
	case schema.TypeNumeric:
		if c.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", c.Precision, c.Scale)
		}
		return "DECIMAL(38,10)"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		return "DATETIME(6)"
	case schema.TypeBoolean:
		return "BOOLEAN"
	default:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "TEXT"
	}
}
