package mssql

import (
	"fmt"
	"strings"

	"staretl/internal/schema"
	"staretl/internal/storage"
	msddl "staretl/internal/storage/mssql/ddl"
	"staretl/internal/storage/sqlgen"
)

// Dialect is the SQL Server flavor of sqlgen.Dialect. Staging uses
// session-scoped #temp tables and null-safe equality is spelled out, since
// T-SQL has no IS NOT DISTINCT FROM before 2022.
type Dialect struct{}

var _ sqlgen.Dialect = Dialect{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) Quote(id string) string { return msIdent(id) }

func (Dialect) MapType(c schema.Column) string { return msddl.MapType(c) }

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (Dialect) NullSafeEqual(a, b string) string {
	return fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", a, b, a, b)
}

func (Dialect) StagingName(base string) string { return "#" + base }

func (Dialect) CreateStaging(staging, target string, columns []string) []string {
	return []string{
		fmt.Sprintf("SELECT TOP 0 %s INTO %s FROM %s",
			strings.Join(mapIdent(columns), ", "), msIdent(staging), msFQN(target)),
		fmt.Sprintf("ALTER TABLE %s ADD %s BIGINT NULL", msIdent(staging), msIdent(storage.RowNumColumn)),
	}
}

func (Dialect) DropStaging(staging string) string {
	return "DROP TABLE IF EXISTS " + msIdent(staging)
}

func (Dialect) ConflictClause(_, _ string) string { return "" }

func (Dialect) SelfJoinStaging() bool { return true }

// CreateTable guards the statement with OBJECT_ID; SQL Server has no
// CREATE TABLE IF NOT EXISTS.
func (d Dialect) CreateTable(t schema.Table) (string, error) {
	stmt, err := sqlgen.CreateTableSQL(d, t, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\n%s", escapeLiteral(msFQN(t.Name)), stmt), nil
}

func (Dialect) CreateIndex(ix schema.Index) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", msIdent(ix.Name), msFQN(ix.Table), msIdent(ix.Column))
}

func (Dialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM sys.indexes WHERE object_id = OBJECT_ID(@p1) AND name = @p2"
}

func (Dialect) ColumnsQuery() string {
	return "SELECT name FROM sys.columns WHERE object_id = OBJECT_ID(@p1) ORDER BY column_id"
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.dim_users" to
// "[dbo].[dim_users]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}

func escapeLiteral(s string) string { return strings.ReplaceAll(s, "'", "''") }
