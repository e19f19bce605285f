package load

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/metrics"
	"staretl/internal/records"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/transformer/builtin"
)

// Options configures a Loader.
type Options struct {
	// Job labels the metrics recorded for each load.
	Job string
	// BatchSize is the destination's staging batch size, used to count
	// round trips. Defaults to storage.DefaultBatchSize.
	BatchSize int
	Logger    *zap.Logger
}

// Stats describes one table load.
type Stats struct {
	Table string
	// Rows is the number of rows handed to Load.
	Rows int
	// InvalidCells counts values that could not be converted to their
	// column type and were loaded as null.
	InvalidCells int
	// BatchDuplicates counts rows dropped because an earlier row of the
	// same batch had the same content.
	BatchDuplicates int
	Result
	Elapsed time.Duration
}

// Duplicates is the total of in-batch and destination content duplicates.
func (s Stats) Duplicates() int64 {
	return int64(s.BatchDuplicates) + s.ContentDuplicates
}

// Loader conforms a batch to its registered table and applies it through
// an Engine. It is the unit the pipeline calls once per table.
type Loader struct {
	reg       *schema.Registry
	enforcer  *schema.Enforcer
	engine    *Engine
	job       string
	batchSize int
	log       *zap.Logger
}

// NewLoader returns a Loader writing to repo with the tables of reg.
func NewLoader(reg *schema.Registry, repo storage.Repository, opt Options) *Loader {
	log := logging.OrNop(opt.Logger)
	if opt.BatchSize <= 0 {
		opt.BatchSize = storage.DefaultBatchSize
	}
	return &Loader{
		reg:       reg,
		enforcer:  schema.NewEnforcer(reg, log),
		engine:    NewEngine(repo, log),
		job:       opt.Job,
		batchSize: opt.BatchSize,
		log:       log,
	}
}

// Load enforces the registered schema of table on b, coerces cells to the
// registered column types, drops in-batch content duplicates and applies
// the rest. pk defaults to the registered primary key.
//
// A table without a registration is logged and loaded un-enforced; the
// destination then decides whether the columns fit.
func (l *Loader) Load(ctx context.Context, b records.Batch, table, pk string) (Stats, error) {
	start := time.Now()
	st := Stats{Table: table, Rows: b.Len()}

	conformed, err := l.enforcer.Enforce(b, table)
	if err != nil && !errors.Is(err, etlerr.ErrConfiguration) {
		return st, err
	}
	if def, ok := l.reg.Table(table); ok {
		if pk == "" {
			pk = def.PrimaryKey
		}
		conformed.Rows, st.InvalidCells = builtin.CoerceFor(def).Convert(conformed.Rows)
		if st.InvalidCells > 0 {
			l.log.Warn("cells not convertible to column type, loaded as null",
				zap.String("table", table), zap.Int("cells", st.InvalidCells))
		}
	}

	deduped, dups := builtin.DedupContent(conformed, pk)
	st.BatchDuplicates = dups

	res, err := l.engine.Apply(ctx, deduped, table, pk)
	st.Result = res
	st.Elapsed = time.Since(start)
	if err != nil {
		l.log.Error("load failed", zap.String("table", table), zap.Int("rows", st.Rows), zap.Error(err))
		return st, err
	}
	l.record(st)

	l.log.Info("table loaded",
		zap.String("table", table),
		zap.Int("rows", st.Rows),
		zap.Int64("inserted", st.Inserted),
		zap.Int64("content_duplicates", st.Duplicates()),
		zap.Int64("key_conflicts", st.KeyConflicts),
		zap.Int("invalid_cells", st.InvalidCells),
		zap.Duration("elapsed", st.Elapsed),
	)
	return st, nil
}

func (l *Loader) record(st Stats) {
	metrics.RecordRows(l.job, st.Table, metrics.KindInvalidCells, int64(st.InvalidCells))
	metrics.RecordRows(l.job, st.Table, metrics.KindStaged, st.Staged)
	metrics.RecordRows(l.job, st.Table, metrics.KindContentDuplicates, st.Duplicates())
	metrics.RecordRows(l.job, st.Table, metrics.KindKeyConflicts, st.KeyConflicts)
	metrics.RecordRows(l.job, st.Table, metrics.KindInserted, st.Inserted)
	n := int64(l.batchSize)
	metrics.RecordBatches(l.job, st.Table, (st.Staged+n-1)/n)
}
