package mysql

import (
	"fmt"
	"strings"

	"staretl/internal/schema"
	"staretl/internal/storage"
	myddl "staretl/internal/storage/mysql/ddl"
	"staretl/internal/storage/sqlgen"
)

// Dialect is the MySQL flavor of sqlgen.Dialect.
//
// MySQL cannot open a TEMPORARY table twice in one statement, so the staged
// key dedup is skipped and InsertNew relies on the ordered feed plus
// ON DUPLICATE KEY to keep the earliest staged row.
type Dialect struct{}

var _ sqlgen.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

func (Dialect) MapType(c schema.Column) string { return myddl.MapType(c) }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) NullSafeEqual(a, b string) string { return a + " <=> " + b }

func (Dialect) StagingName(base string) string { return base }

// CreateStaging declares the ordinal column inline; a separate ALTER TABLE
// would commit the surrounding transaction.
func (d Dialect) CreateStaging(staging, target string, columns []string) []string {
	return []string{
		fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s BIGINT) SELECT %s FROM %s WHERE 1 = 0",
			d.Quote(staging), d.Quote(storage.RowNumColumn),
			strings.Join(sqlgen.QuoteAll(d, columns), ", "), d.Quote(target)),
	}
}

func (d Dialect) DropStaging(staging string) string {
	return "DROP TEMPORARY TABLE IF EXISTS " + d.Quote(staging)
}

// ConflictClause is a no-op update: with the driver's default affected-rows
// semantics an unchanged row counts zero, so Inserted stays exact.
func (d Dialect) ConflictClause(table, pk string) string {
	col := d.Quote(table) + "." + d.Quote(pk)
	return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", col, col)
}

func (Dialect) SelfJoinStaging() bool { return false }

func (d Dialect) CreateTable(t schema.Table) (string, error) {
	return sqlgen.CreateTableSQL(d, t, true)
}

func (d Dialect) CreateIndex(ix schema.Index) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.Quote(ix.Name), d.Quote(ix.Table), d.Quote(ix.Column))
}

func (Dialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.statistics " +
		"WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?"
}

func (Dialect) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
}
