package sqlite

import (
	"fmt"
	"strings"

	"staretl/internal/schema"
	"staretl/internal/storage"
	sqliteddl "staretl/internal/storage/sqlite/ddl"
	"staretl/internal/storage/sqlgen"
)

// Dialect is the SQLite flavor of sqlgen.Dialect.
type Dialect struct{}

var _ sqlgen.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (Dialect) MapType(c schema.Column) string { return sqliteddl.MapType(c) }

func (Dialect) Placeholder(int) string { return "?" }

// NullSafeEqual uses IS, which treats two NULLs as equal.
func (Dialect) NullSafeEqual(a, b string) string { return a + " IS " + b }

func (Dialect) StagingName(base string) string { return base }

func (d Dialect) CreateStaging(staging, target string, columns []string) []string {
	return []string{
		fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE 0",
			d.Quote(staging), strings.Join(sqlgen.QuoteAll(d, columns), ", "), d.Quote(target)),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER", d.Quote(staging), d.Quote(storage.RowNumColumn)),
	}
}

func (d Dialect) DropStaging(staging string) string {
	return "DROP TABLE IF EXISTS temp." + d.Quote(staging)
}

func (d Dialect) ConflictClause(_, pk string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", d.Quote(pk))
}

func (Dialect) SelfJoinStaging() bool { return true }

func (d Dialect) CreateTable(t schema.Table) (string, error) {
	return sqlgen.CreateTableSQL(d, t, true)
}

func (d Dialect) CreateIndex(ix schema.Index) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		d.Quote(ix.Name), d.Quote(ix.Table), d.Quote(ix.Column))
}

func (Dialect) IndexExistsQuery() string { return "" }

func (Dialect) ColumnsQuery() string {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid"
}
