// Package memory is an in-process storage.Repository. It applies the same
// two-phase upsert protocol as the SQL backends, including primary key,
// NOT NULL and foreign key enforcement, and is registered as kind "memory"
// for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/schema"
	"staretl/internal/storage"
)

type table struct {
	def  schema.Table
	pos  map[string]int // column name -> position in def
	rows [][]any        // aligned to def.Columns
	keys map[any]int    // normalized pk -> index into rows
}

// Repository keeps tables in memory. The zero value is not usable; call New.
type Repository struct {
	mu      sync.Mutex
	tables  map[string]*table
	indexes map[string]struct{}
	staging map[string]struct{}
	stmts   []string
	log     *zap.Logger

	// FailUpsert, when set, is consulted before each upsert; a non-nil
	// return aborts that upsert after staging, leaving the table untouched.
	FailUpsert func(table string) error
}

var _ storage.Repository = (*Repository)(nil)

// New returns an empty Repository.
func New(log *zap.Logger) *Repository {
	return &Repository{
		tables:  map[string]*table{},
		indexes: map[string]struct{}{},
		staging: map[string]struct{}{},
		log:     logging.OrNop(log),
	}
}

func init() {
	storage.Register("memory", func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(cfg.Logger), nil
	})
}

// Exec records the statement. Nothing is interpreted.
func (r *Repository) Exec(_ context.Context, sql string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, sql)
	return nil
}

// Columns lists the columns of a created table.
func (r *Repository) Columns(_ context.Context, name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[name]
	if !ok {
		return nil, &etlerr.SchemaMismatchError{Table: name, Msg: "table does not exist"}
	}
	return t.def.ColumnNames(), nil
}

// EnsureTables creates the registered tables that do not exist yet.
func (r *Repository) EnsureTables(_ context.Context, reg *schema.Registry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range reg.Tables() {
		if _, ok := r.tables[def.Name]; ok {
			continue
		}
		t := &table{def: def, pos: make(map[string]int, len(def.Columns)), keys: map[any]int{}}
		for i, c := range def.Columns {
			t.pos[c.Name] = i
		}
		r.tables[def.Name] = t
	}
	return nil
}

// EnsureIndexes records the registered indexes.
func (r *Repository) EnsureIndexes(_ context.Context, reg *schema.Registry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ix := range reg.Indexes() {
		if _, ok := r.tables[ix.Table]; !ok {
			return &etlerr.SchemaMismatchError{Table: ix.Table, Msg: "index on missing table " + ix.Name}
		}
		r.indexes[ix.Name] = struct{}{}
	}
	return nil
}

// Upsert applies the protocol atomically: every check runs before any row
// is added, so a failed call leaves the table as it was.
func (r *Repository) Upsert(_ context.Context, plan storage.UpsertPlan, rows [][]any) (storage.UpsertResult, error) {
	var res storage.UpsertResult
	if err := plan.Validate(); err != nil {
		return res, err
	}
	if len(rows) == 0 {
		return res, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[plan.Table]
	if !ok {
		return res, &etlerr.SchemaMismatchError{Table: plan.Table, Msg: "table does not exist"}
	}
	var missing []string
	for _, c := range plan.Columns {
		if _, ok := t.pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return res, &etlerr.SchemaMismatchError{Table: plan.Table, Columns: missing, Msg: "columns not in table"}
	}
	if plan.PrimaryKey != t.def.PrimaryKey {
		return res, &etlerr.SchemaMismatchError{Table: plan.Table, Columns: []string{plan.PrimaryKey},
			Msg: "conflict column is not the primary key " + t.def.PrimaryKey}
	}

	r.staging[plan.Staging] = struct{}{}
	defer delete(r.staging, plan.Staging)

	staged := make([][]any, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(plan.Columns) {
			return res, fmt.Errorf("memory: row %d: length %d != columns length %d", i, len(row), len(plan.Columns))
		}
		full := make([]any, len(t.def.Columns))
		for j, c := range plan.Columns {
			full[t.pos[c]] = row[j]
		}
		staged = append(staged, full)
	}
	res.Staged = int64(len(staged))

	if r.FailUpsert != nil {
		if err := r.FailUpsert(plan.Table); err != nil {
			return res, err
		}
	}

	// Phase 1: drop staged rows whose content key matches an existing row.
	content := make([]int, len(plan.ContentKey))
	for i, c := range plan.ContentKey {
		content[i] = t.pos[c]
	}
	kept := staged[:0]
	for _, row := range staged {
		if t.hasContent(row, content) {
			res.ContentDuplicates++
			continue
		}
		kept = append(kept, row)
	}

	// Phase 2: first staged row per free key wins.
	pk := t.pos[t.def.PrimaryKey]
	seen := map[any]struct{}{}
	var inserts [][]any
	for _, row := range kept {
		k := normalize(row[pk])
		if _, taken := t.keys[k]; taken {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		inserts = append(inserts, row)
	}

	for _, row := range inserts {
		if err := r.checkRow(t, row); err != nil {
			return res, err
		}
	}
	for _, row := range inserts {
		t.keys[normalize(row[pk])] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	res.Inserted = int64(len(inserts))
	res.KeyConflicts = res.Staged - res.ContentDuplicates - res.Inserted
	r.log.Debug("memory upsert",
		zap.String("table", plan.Table),
		zap.Int64("staged", res.Staged),
		zap.Int64("inserted", res.Inserted))
	return res, nil
}

// Close is a no-op.
func (r *Repository) Close() {}

// Rows returns a copy of the rows of name keyed by column.
func (r *Repository) Rows(name string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]any, len(row))
		for j, c := range t.def.Columns {
			m[c.Name] = row[j]
		}
		out[i] = m
	}
	return out
}

// Count returns the number of rows in name.
func (r *Repository) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

// OpenStaging lists staging areas that have not been released.
func (r *Repository) OpenStaging() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.staging))
	for s := range r.staging {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Indexes lists created index names, sorted.
func (r *Repository) Indexes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.indexes))
	for ix := range r.indexes {
		out = append(out, ix)
	}
	sort.Strings(out)
	return out
}

func (t *table) hasContent(row []any, cols []int) bool {
	for _, existing := range t.rows {
		match := true
		for _, c := range cols {
			if !nullSafeEqual(existing[c], row[c]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (r *Repository) checkRow(t *table, row []any) error {
	for i, c := range t.def.Columns {
		if row[i] == nil && (c.NotNull || c.Name == t.def.PrimaryKey) {
			return fmt.Errorf("memory: %s.%s: NOT NULL constraint failed", t.def.Name, c.Name)
		}
	}
	for _, fk := range t.def.ForeignKeys {
		v := row[t.pos[fk.Column]]
		if v == nil {
			continue
		}
		ref, ok := r.tables[fk.RefTable]
		if !ok {
			return &etlerr.SchemaMismatchError{Table: fk.RefTable, Msg: "referenced table does not exist"}
		}
		if _, ok := ref.keys[normalize(v)]; !ok {
			return fmt.Errorf("memory: %s: FOREIGN KEY constraint %s failed for %v", t.def.Name, fk.Name, v)
		}
	}
	return nil
}

func nullSafeEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return normalize(a) == normalize(b)
}

// normalize maps values to comparable map keys: numbers to float64 and
// times to their UTC instant.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return v
	}
}
