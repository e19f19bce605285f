package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// TestCopyInBatches_Basic verifies rows are chunked and the total equals the
// sum of all copyFn returns.
func TestCopyInBatches_Basic(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{i, "x"}
	}

	var calls int32
	copyFn := func(_ context.Context, _ []string, chunk [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return int64(len(chunk)), nil
	}

	total, err := CopyInBatches(context.Background(), []string{"c1", "c2"}, rows, 3, copyFn, nil)
	if err != nil {
		t.Fatalf("CopyInBatches error: %v", err)
	}
	if total != 7 {
		t.Fatalf("total rows %d, want 7", total)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("copyFn calls %d, want 3 (3+3+1)", got)
	}
}

// TestCopyInBatches_ErrorPropagation ensures the first copy error stops
// processing and is returned wrapped.
func TestCopyInBatches_ErrorPropagation(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{i}
	}

	wantErr := errors.New("copy failed")
	var batches int
	copyFn := func(_ context.Context, _ []string, chunk [][]any) (int64, error) {
		batches++
		if batches == 2 {
			return 0, wantErr
		}
		return int64(len(chunk)), nil
	}

	total, err := CopyInBatches(context.Background(), []string{"c"}, rows, 2, copyFn, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want error %v, got %v", wantErr, err)
	}
	if total != 2 {
		t.Fatalf("total rows %d, want 2", total)
	}
	if batches != 2 {
		t.Fatalf("copyFn calls %d, want 2", batches)
	}
}

// TestCopyInBatches_ContextCancel checks a canceled context stops before the
// first chunk.
func TestCopyInBatches_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := CopyInBatches(ctx, []string{"c"}, [][]any{{1}}, 10, func(context.Context, []string, [][]any) (int64, error) {
		called = true
		return 1, nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("copyFn called after cancellation")
	}
}

func TestCopyInBatches_BadArgs(t *testing.T) {
	t.Parallel()

	if _, err := CopyInBatches(context.Background(), nil, nil, 0, nil, nil); err == nil {
		t.Fatalf("want error for batchSize=0")
	}
	if _, err := CopyInBatches(context.Background(), nil, nil, 1, nil, nil); err == nil {
		t.Fatalf("want error for nil copyFn")
	}
}

func TestWithRowNumbers(t *testing.T) {
	t.Parallel()

	src := [][]any{{"a"}, {"b"}}
	cols, rows := WithRowNumbers([]string{"name"}, src)

	if len(cols) != 2 || cols[1] != RowNumColumn {
		t.Fatalf("cols = %v", cols)
	}
	if rows[0][1] != int64(1) || rows[1][1] != int64(2) {
		t.Fatalf("ordinals = %v, %v", rows[0][1], rows[1][1])
	}
	if len(src[0]) != 1 {
		t.Fatalf("source rows modified: %v", src[0])
	}
}
