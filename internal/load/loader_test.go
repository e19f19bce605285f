package load

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staretl/internal/metrics"
	"staretl/internal/records"
	"staretl/internal/storage"
	_ "staretl/internal/storage/sqlite"
)

type recorder struct {
	mu   sync.Mutex
	rows map[string]float64 // table/kind -> total
	bat  map[string]float64
}

func (r *recorder) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch name {
	case metrics.RowsTotal:
		r.rows[l["table"]+"/"+l["kind"]] += delta
	case metrics.BatchesTotal:
		r.bat[l["table"]] += delta
	}
}
func (r *recorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *recorder) Flush() error                                     { return nil }

func TestLoader_EnforcesCoercesAndDedups(t *testing.T) {
	rec := &recorder{rows: map[string]float64{}, bat: map[string]float64{}}
	metrics.SetBackend(rec)

	ctx := context.Background()
	repo := memoryRepo(t)
	l := NewLoader(testRegistry(t), repo, Options{Job: "test", BatchSize: 2})

	b := records.NewBatch([]records.Record{
		{"parent_id": "1", "Name": "a", "score": "1.50", "colour": "red"},
		{"parent_id": 2.0, "Name": "a", "score": 1.5},
		{"parent_id": int64(3), "Name": "c", "score": "high"},
	})
	st, err := l.Load(ctx, b, "parents", "")
	require.NoError(t, err)

	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 1, st.InvalidCells)
	assert.Equal(t, 1, st.BatchDuplicates, "row 2 repeats row 1 apart from the key")
	assert.Equal(t, Result{Staged: 2, Inserted: 2}, st.Result)
	assert.Equal(t, int64(1), st.Duplicates())

	rows := repo.Rows("parents")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["parent_id"])
	assert.Equal(t, 1.5, rows[0]["score"])
	assert.Nil(t, rows[1]["score"])
	assert.NotContains(t, rows[0], "colour")

	assert.Equal(t, 1.0, rec.rows["parents/invalid_cells"])
	assert.Equal(t, 2.0, rec.rows["parents/inserted"])
	assert.Equal(t, 1.0, rec.bat["parents"])
}

func TestLoader_UnregisteredTableStillReachesDestination(t *testing.T) {
	t.Parallel()
	repo := memoryRepo(t)
	l := NewLoader(testRegistry(t), repo, Options{})
	_, err := l.Load(context.Background(), records.NewBatch([]records.Record{{"id": 1}}), "unknown", "id")
	require.Error(t, err, "destination rejects the missing table")
}

func TestLoader_SQLiteRerunInsertsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{
		Kind:      "sqlite",
		DSN:       filepath.Join(t.TempDir(), "warehouse.db"),
		BatchSize: 2,
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	reg := testRegistry(t)
	require.NoError(t, repo.EnsureTables(ctx, reg))
	l := NewLoader(reg, repo, Options{BatchSize: 2})

	b := parents(
		records.Record{"parent_id": int64(1), "name": "a", "score": 1.25},
		records.Record{"parent_id": int64(2), "name": "b", "score": nil},
		records.Record{"parent_id": int64(2), "name": "b2", "score": 2.0},
	)
	first, err := l.Load(ctx, b, "parents", "parent_id")
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Inserted)
	assert.Equal(t, int64(1), first.KeyConflicts, "earliest row wins a shared key")

	again, err := l.Load(ctx, b, "parents", "parent_id")
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, int64(2), again.ContentDuplicates)
	assert.Equal(t, int64(1), again.KeyConflicts)
}
