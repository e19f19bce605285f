package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staretl/internal/etlerr"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/storage/sqlgen"
)

func openTestRepo(t *testing.T, batch int) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	repo, closeFn, err := NewRepository(context.Background(), Config{DSN: dsn, BatchSize: batch})
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return repo
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.Table{
		{
			Name:       "parents",
			PrimaryKey: "parent_id",
			Columns: []schema.Column{
				{Name: "parent_id", Type: schema.TypeInteger},
				{Name: "name", Type: schema.TypeText},
				{Name: "score", Type: schema.TypeNumeric, Precision: 10, Scale: 2},
			},
		},
		{
			Name:       "children",
			PrimaryKey: "child_id",
			Columns: []schema.Column{
				{Name: "child_id", Type: schema.TypeText},
				{Name: "parent_id", Type: schema.TypeInteger, NotNull: true},
				{Name: "qty", Type: schema.TypeInteger},
			},
			ForeignKeys: []schema.ForeignKey{
				{Name: "fk_children_parent", Column: "parent_id", RefTable: "parents", RefColumn: "parent_id"},
			},
		},
	}, []schema.Index{{Name: "idx_children_parent", Table: "children", Column: "parent_id"}})
	require.NoError(t, err)
	return reg
}

func parentsPlan(staging string) storage.UpsertPlan {
	return storage.UpsertPlan{
		Table:      "parents",
		Staging:    staging,
		Columns:    []string{"parent_id", "name", "score"},
		PrimaryKey: "parent_id",
		ContentKey: []string{"name", "score"},
	}
}

func countRows(t *testing.T, r *Repository, table string) int {
	t.Helper()
	var n int
	require.NoError(t, r.DB().QueryRow("SELECT COUNT(*) FROM "+Dialect{}.Quote(table)).Scan(&n))
	return n
}

func TestEnsureTablesAndIndexes_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, 0)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.EnsureTables(ctx, schema.StarSchema()))
		require.NoError(t, repo.EnsureIndexes(ctx, schema.StarSchema()))
	}

	cols, err := repo.Columns(ctx, schema.FactSales)
	require.NoError(t, err)
	want, _ := schema.StarSchema().Schema(schema.FactSales)
	assert.Equal(t, want, cols)
}

func TestUpsert_ContentAndKeyExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, 2)
	require.NoError(t, repo.EnsureTables(ctx, testRegistry(t)))

	first := [][]any{
		{int64(1), "alice", 10.5},
		{int64(2), nil, nil},
		{int64(1), "alice-later", 11.0}, // same key, later row loses
	}
	res, err := repo.Upsert(ctx, parentsPlan("stg_parents_1"), first)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertResult{Staged: 3, ContentDuplicates: 0, KeyConflicts: 1, Inserted: 2}, res)

	var name string
	require.NoError(t, repo.DB().QueryRow(`SELECT name FROM parents WHERE parent_id = 1`).Scan(&name))
	assert.Equal(t, "alice", name, "earliest staged row must win")

	// Rerun: every row matches either by content (NULLs included) or by key.
	res, err = repo.Upsert(ctx, parentsPlan("stg_parents_2"), first)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Inserted)
	assert.EqualValues(t, 2, res.ContentDuplicates)
	assert.EqualValues(t, 1, res.KeyConflicts)
	assert.Equal(t, 2, countRows(t, repo, "parents"))

	// Same content under a new key is dropped by phase 1.
	res, err = repo.Upsert(ctx, parentsPlan("stg_parents_3"), [][]any{{int64(9), "alice", 10.5}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ContentDuplicates)
	assert.Equal(t, 2, countRows(t, repo, "parents"))

	// Changed content under an existing key is never an update.
	res, err = repo.Upsert(ctx, parentsPlan("stg_parents_4"), [][]any{{int64(1), "renamed", 1.0}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.KeyConflicts)
	require.NoError(t, repo.DB().QueryRow(`SELECT name FROM parents WHERE parent_id = 1`).Scan(&name))
	assert.Equal(t, "alice", name)
}

func TestUpsert_StagingDroppedOnSuccessAndFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, 0)
	require.NoError(t, repo.EnsureTables(ctx, testRegistry(t)))

	_, err := repo.Upsert(ctx, parentsPlan("stg_ok"), [][]any{{int64(1), "a", 1.0}})
	require.NoError(t, err)

	// Orphan parent violates the foreign key at insert time.
	_, err = repo.Upsert(ctx, storage.UpsertPlan{
		Table:      "children",
		Staging:    "stg_bad",
		Columns:    []string{"child_id", "parent_id", "qty"},
		PrimaryKey: "child_id",
		ContentKey: []string{"qty"},
	}, [][]any{{"1_1", int64(404), int64(3)}})
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, repo, "children"), "failed upsert must roll back")

	var n int
	require.NoError(t, repo.DB().QueryRow(
		`SELECT COUNT(*) FROM sqlite_temp_master WHERE name IN ('stg_ok', 'stg_bad')`).Scan(&n))
	assert.Zero(t, n, "staging tables must not survive")
}

func TestUpsert_EmptyAndInvalidPlans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t, 0)
	require.NoError(t, repo.EnsureTables(ctx, testRegistry(t)))

	res, err := repo.Upsert(ctx, parentsPlan("stg_empty"), nil)
	require.NoError(t, err)
	assert.Zero(t, res)

	bad := parentsPlan("stg_bad")
	bad.PrimaryKey = "missing"
	_, err = repo.Upsert(ctx, bad, [][]any{{int64(1), "a", 1.0}})
	require.Error(t, err)
}

func TestUpsert_UnknownTableIsSchemaMismatch(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t, 0)

	plan := parentsPlan("stg_nowhere")
	plan.Table = "nowhere"
	_, err := repo.Upsert(context.Background(), plan, [][]any{{int64(1), "a", 1.0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrSchemaMismatch), "got %v", err)
}

func TestDialect_RenderedPhases(t *testing.T) {
	t.Parallel()
	d := Dialect{}
	p := parentsPlan("stg")

	assert.Equal(t,
		`DELETE FROM "stg" WHERE EXISTS (SELECT 1 FROM "parents" AS tgt WHERE tgt."name" IS "stg"."name" AND tgt."score" IS "stg"."score")`,
		sqlgen.ContentMatchDelete(d, p))
	assert.Equal(t,
		`DELETE FROM "stg" WHERE "__rownum" NOT IN (SELECT MIN("__rownum") FROM "stg" GROUP BY "parent_id")`,
		sqlgen.StagedKeyDedupDelete(d, p))
	assert.Equal(t,
		`INSERT INTO "parents" ("parent_id", "name", "score") SELECT src."parent_id", src."name", src."score" FROM "stg" AS src `+
			`WHERE NOT EXISTS (SELECT 1 FROM "parents" AS tgt WHERE tgt."parent_id" = src."parent_id") ON CONFLICT ("parent_id") DO NOTHING`,
		sqlgen.InsertNew(d, p))
}
