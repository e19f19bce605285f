// Package ddl contains MSSQL-specific helpers for generating DDL.
package ddl

import (
	"fmt"

	"staretl/internal/schema"
)

// MapType maps a registered column to a SQL Server column type. Text that
// takes part in a key gets a bounded NVARCHAR since NVARCHAR(MAX) cannot be
// indexed.
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
		return "DATETIME2"
	case schema.TypeBoolean:
		return "BIT"
	default:
		if c.Size > 0 {
			return fmt.Sprintf("NVARCHAR(%d)", c.Size)
		}
		return "NVARCHAR(MAX)"
	}
}
