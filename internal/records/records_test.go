package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchColumnsFirstSeen(t *testing.T) {
	t.Parallel()

	b := NewBatch([]Record{
		{"b": 1, "a": 2},
		{"c": 3, "a": 4},
	})
	assert.Equal(t, []string{"a", "b", "c"}, b.Columns)
	assert.Equal(t, 2, b.Len())
	assert.True(t, b.HasColumn("c"))
	assert.False(t, b.HasColumn("d"))
}

func TestTuplesAlignToHeader(t *testing.T) {
	t.Parallel()

	b := Batch{
		Columns: []string{"id", "name"},
		Rows:    []Record{{"id": int64(1), "name": "x"}, {"id": int64(2)}},
	}
	assert.Equal(t, [][]any{{int64(1), "x"}, {int64(2), nil}}, b.Tuples())
}

func TestFilterKeepsHeader(t *testing.T) {
	t.Parallel()

	b := Batch{
		Columns: []string{"id"},
		Rows:    []Record{{"id": 1}, {"id": 2}, {"id": 3}},
	}
	got := b.Filter(func(r Record) bool { return r["id"].(int) != 2 })
	assert.Equal(t, []string{"id"}, got.Columns)
	assert.Equal(t, []Record{{"id": 1}, {"id": 3}}, got.Rows)
	assert.Equal(t, 3, b.Len(), "source batch untouched")
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	r := Record{"a": 1}
	c := r.Clone()
	c["a"] = 2
	assert.Equal(t, 1, r["a"])
}
