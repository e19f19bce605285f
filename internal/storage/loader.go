package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"staretl/internal/logging"
)

// DefaultBatchSize is used when Config.BatchSize is not positive.
const DefaultBatchSize = 1000

// CopyFn abstracts a backend's bulk insert into a staging area. It inserts
// rows (aligned to columns) and returns the number of rows written.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// CopyInBatches splits rows into chunks of batchSize and hands each chunk to
// copyFn. It returns the running total and the first error. A debug line is
// logged per chunk with the instantaneous rows/sec.
func CopyInBatches(
	ctx context.Context,
	columns []string,
	rows [][]any,
	batchSize int,
	copyFn CopyFn,
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	log = logging.OrNop(log)

	var (
		total   int64
		batches int
		start   = time.Now()
		last    = start
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		hi := lo + batchSize
		if hi > len(rows) {
			hi = len(rows)
		}
		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			return total, fmt.Errorf("staging batch #%d: %w", batches+1, err)
		}

		batches++
		now := time.Now()
		rps := float64(0)
		if d := now.Sub(last); d > 0 {
			rps = float64(n) / d.Seconds()
		}
		log.Debug("staged batch",
			zap.Int("batch", batches),
			zap.Int64("rows", n),
			zap.Int64("total", total),
			zap.Float64("rps", rps),
			zap.Duration("elapsed", now.Sub(start)),
		)
		last = now
	}
	return total, nil
}

// WithRowNumbers returns the staging header (columns plus RowNumColumn) and
// copies of rows with their 1-based ordinal appended.
func WithRowNumbers(columns []string, rows [][]any) ([]string, [][]any) {
	cols := make([]string, 0, len(columns)+1)
	cols = append(cols, columns...)
	cols = append(cols, RowNumColumn)

	out := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, 0, len(r)+1)
		row = append(row, r...)
		row = append(row, int64(i+1))
		out[i] = row
	}
	return cols, out
}
