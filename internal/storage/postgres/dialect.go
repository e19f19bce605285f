package postgres

import (
	"fmt"
	"strings"

	"staretl/internal/schema"
	"staretl/internal/storage"
	pgddl "staretl/internal/storage/postgres/ddl"
	"staretl/internal/storage/sqlgen"
)

// Dialect is the Postgres flavor of sqlgen.Dialect.
type Dialect struct{}

var _ sqlgen.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Quote(id string) string { return pgIdent(id) }

func (Dialect) MapType(c schema.Column) string { return pgddl.MapType(c) }

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (Dialect) NullSafeEqual(a, b string) string { return a + " IS NOT DISTINCT FROM " + b }

// StagingName keeps the base name; temp tables live in the session's
// pg_temp schema.
func (Dialect) StagingName(base string) string { return base }

func (Dialect) CreateStaging(staging, target string, columns []string) []string {
	return []string{
		fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE false",
			pgIdent(staging), strings.Join(mapIdent(columns), ", "), pgFQN(target)),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s BIGINT", pgIdent(staging), pgIdent(storage.RowNumColumn)),
	}
}

func (Dialect) DropStaging(staging string) string {
	return "DROP TABLE IF EXISTS " + pgIdent(staging)
}

func (Dialect) ConflictClause(_, pk string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", pgIdent(pk))
}

func (Dialect) SelfJoinStaging() bool { return true }

func (d Dialect) CreateTable(t schema.Table) (string, error) {
	return sqlgen.CreateTableSQL(d, t, true)
}

func (Dialect) CreateIndex(ix schema.Index) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pgIdent(ix.Name), pgFQN(ix.Table), pgIdent(ix.Column))
}

func (Dialect) IndexExistsQuery() string { return "" }

func (Dialect) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position"
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.dim_users" to
// "public"."dim_users".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
