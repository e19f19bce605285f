// Package sqlgen renders the statements of the idempotent upsert protocol for
// any SQL backend that implements Dialect.
//
// The protocol per call is:
//
//	create staging      (CreateStaging)
//	copy rows           (backend bulk path)
//	phase 1             ContentMatchDelete: drop staged rows whose content key
//	                    equals an existing row, NULL equal to NULL
//	phase 2a            StagedKeyDedupDelete: drop later staged rows that share
//	                    a primary key (dialects that allow a staging self-join)
//	phase 2b            InsertNew: insert staged rows whose key is not taken,
//	                    never touching existing rows
//	drop staging        (DropStaging)
package sqlgen

import (
	"fmt"
	"strings"

	"staretl/internal/ddl"
	"staretl/internal/schema"
	"staretl/internal/storage"
)

// Dialect captures everything the renderer needs to know about a backend.
type Dialect interface {
	// Name is the storage kind, e.g. "postgres".
	Name() string
	// Quote quotes one identifier.
	Quote(ident string) string
	// MapType maps a logical column to a SQL type.
	MapType(c schema.Column) string
	// Placeholder returns the bind parameter for 1-based position i.
	Placeholder(i int) string
	// NullSafeEqual returns a predicate that is true when a and b are equal
	// or both NULL.
	NullSafeEqual(a, b string) string
	// StagingName turns a unique base name into the backend's scratch table
	// name (e.g. a # prefix for session temp tables).
	StagingName(base string) string
	// CreateStaging returns the statements creating an empty staging table
	// with the target's column types for columns, plus storage.RowNumColumn.
	CreateStaging(staging, target string, columns []string) []string
	// DropStaging removes the staging table if it still exists.
	DropStaging(staging string) string
	// ConflictClause is appended to InsertNew as a primary-key backstop; it
	// may be empty.
	ConflictClause(table, pk string) string
	// SelfJoinStaging reports whether the staging table may be referenced
	// twice in one statement.
	SelfJoinStaging() bool
	// CreateTable renders an idempotent CREATE TABLE for t.
	CreateTable(t schema.Table) (string, error)
	// CreateIndex renders CREATE INDEX for ix. Dialects without an
	// IF NOT EXISTS form return a bare statement and a non-empty
	// IndexExistsQuery.
	CreateIndex(ix schema.Index) string
	// IndexExistsQuery returns a query taking (table, index) and yielding a
	// count, or "" when CreateIndex is already idempotent.
	IndexExistsQuery() string
	// ColumnsQuery returns a query taking (table) and yielding column names.
	ColumnsQuery() string
}

// QuoteAll maps Quote over names.
func QuoteAll(d Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return out
}

// CreateTableSQL renders t through the generic ddl model with the dialect's
// quoting and type mapping.
func CreateTableSQL(d Dialect, t schema.Table, ifNotExists bool) (string, error) {
	td := ddl.FromTable(t, d.Quote, d.MapType)
	td.IfNotExists = ifNotExists
	return ddl.BuildCreateTableSQL(td)
}

// ContentMatchDelete renders phase 1.
func ContentMatchDelete(d Dialect, p storage.UpsertPlan) string {
	stg := d.Quote(p.Staging)
	conds := make([]string, len(p.ContentKey))
	for i, c := range p.ContentKey {
		conds[i] = d.NullSafeEqual("tgt."+d.Quote(c), stg+"."+d.Quote(c))
	}
	return fmt.Sprintf(
		"DELETE FROM %s WHERE EXISTS (SELECT 1 FROM %s AS tgt WHERE %s)",
		stg, d.Quote(p.Table), strings.Join(conds, " AND "),
	)
}

// StagedKeyDedupDelete renders phase 2a, or "" when the dialect cannot
// self-join the staging table.
func StagedKeyDedupDelete(d Dialect, p storage.UpsertPlan) string {
	if !d.SelfJoinStaging() {
		return ""
	}
	stg := d.Quote(p.Staging)
	rn := d.Quote(storage.RowNumColumn)
	return fmt.Sprintf(
		"DELETE FROM %s WHERE %s NOT IN (SELECT MIN(%s) FROM %s GROUP BY %s)",
		stg, rn, rn, stg, d.Quote(p.PrimaryKey),
	)
}

// InsertNew renders phase 2b.
func InsertNew(d Dialect, p storage.UpsertPlan) string {
	tbl := d.Quote(p.Table)
	pk := d.Quote(p.PrimaryKey)
	src := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		src[i] = "src." + d.Quote(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb,
		"INSERT INTO %s (%s) SELECT %s FROM %s AS src WHERE NOT EXISTS (SELECT 1 FROM %s AS tgt WHERE tgt.%s = src.%s)",
		tbl, strings.Join(QuoteAll(d, p.Columns), ", "), strings.Join(src, ", "),
		d.Quote(p.Staging), tbl, pk, pk,
	)
	if !d.SelfJoinStaging() {
		// Without phase 2a the conflict clause decides between staged rows,
		// so feed them in batch order.
		fmt.Fprintf(&sb, " ORDER BY src.%s", d.Quote(storage.RowNumColumn))
	}
	if c := d.ConflictClause(p.Table, p.PrimaryKey); c != "" {
		sb.WriteByte(' ')
		sb.WriteString(c)
	}
	return sb.String()
}
