// Package sqlstore implements storage.Repository on top of database/sql for
// any backend that provides a sqlgen.Dialect. The sqlite, mysql and mssql
// backends are thin wrappers around it; they differ only in dialect, driver
// and the way rows are moved into the staging table.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/storage/sqlgen"
)

// Stager moves rows (aligned to columns) into the staging table inside tx and
// returns the number of rows staged.
type Stager func(ctx context.Context, tx *sql.Tx, staging string, columns []string, rows [][]any) (int64, error)

// Classifier maps a driver error raised during op on table to one of the
// pipeline's error kinds. It returns err wrapped when nothing applies.
type Classifier func(table, op string, err error) error

// Options configures a Repository.
type Options struct {
	Dialect   sqlgen.Dialect
	BatchSize int
	Logger    *zap.Logger
	// Stager overrides the default prepared-INSERT staging path.
	Stager Stager
	// Classify overrides the default error wrapping.
	Classify Classifier
}

// Repository is a database/sql implementation of storage.Repository.
// It does not own db; the backend wrapper closes it.
type Repository struct {
	db       *sql.DB
	d        sqlgen.Dialect
	batch    int
	log      *zap.Logger
	stage    Stager
	classify Classifier
}

// New returns a Repository over db.
func New(db *sql.DB, opts Options) *Repository {
	r := &Repository{
		db:       db,
		d:        opts.Dialect,
		batch:    opts.BatchSize,
		log:      logging.OrNop(opts.Logger),
		stage:    opts.Stager,
		classify: opts.Classify,
	}
	if r.batch <= 0 {
		r.batch = storage.DefaultBatchSize
	}
	if r.classify == nil {
		r.classify = wrapOp
	}
	if r.stage == nil {
		r.stage = InsertStager(r.d, r.batch, r.log)
	}
	return r
}

// DB exposes the underlying pool.
func (r *Repository) DB() *sql.DB { return r.db }

// StagingName implements storage.StagingNamer.
func (r *Repository) StagingName(base string) string { return r.d.StagingName(base) }

// Dialect returns the dialect the repository renders with.
func (r *Repository) Dialect() sqlgen.Dialect { return r.d }

// Exec executes a single statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return r.classify("", "exec", err)
	}
	return nil
}

// Columns lists the columns of table in ordinal order.
func (r *Repository) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.d.ColumnsQuery(), table)
	if err != nil {
		return nil, r.classify(table, "describe", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, r.classify(table, "describe", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify(table, "describe", err)
	}
	return cols, nil
}

// EnsureTables creates the registered tables, referenced tables first.
func (r *Repository) EnsureTables(ctx context.Context, reg *schema.Registry) error {
	for _, t := range reg.Tables() {
		stmt, err := r.d.CreateTable(t)
		if err != nil {
			return err
		}
		if err := r.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// EnsureIndexes creates the registered indexes that do not exist yet.
func (r *Repository) EnsureIndexes(ctx context.Context, reg *schema.Registry) error {
	probe := r.d.IndexExistsQuery()
	for _, ix := range reg.Indexes() {
		if probe != "" {
			var n int
			if err := r.db.QueryRowContext(ctx, probe, ix.Table, ix.Name).Scan(&n); err != nil {
				return fmt.Errorf("probe index %s: %w", ix.Name, r.classify(ix.Table, "probe index", err))
			}
			if n > 0 {
				continue
			}
		}
		if err := r.Exec(ctx, r.d.CreateIndex(ix)); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return nil
}

// Upsert runs the staging, exclusion and insert steps for plan in one
// transaction on a single pinned connection, which keeps session-scoped
// temporary tables visible to every statement.
func (r *Repository) Upsert(ctx context.Context, plan storage.UpsertPlan, rows [][]any) (storage.UpsertResult, error) {
	var res storage.UpsertResult
	if err := plan.Validate(); err != nil {
		return res, err
	}
	if len(rows) == 0 {
		return res, nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return res, etlerr.Connectivity("destination", "acquire", err)
	}
	defer conn.Close()
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), r.d.DropStaging(plan.Staging))
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, etlerr.Connectivity("destination", "begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range r.d.CreateStaging(plan.Staging, plan.Table, plan.Columns) {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return res, r.classify(plan.Table, "create staging", err)
		}
	}

	cols, staged := storage.WithRowNumbers(plan.Columns, rows)
	res.Staged, err = r.stage(ctx, tx, plan.Staging, cols, staged)
	if err != nil {
		return res, r.classify(plan.Table, "copy into staging", err)
	}

	exec := func(ctx context.Context, q string) (int64, error) {
		out, err := tx.ExecContext(ctx, q)
		if err != nil {
			return 0, err
		}
		return out.RowsAffected()
	}
	if err := sqlgen.RunPhases(ctx, r.d, plan, exec, &res); err != nil {
		return res, r.classify(plan.Table, "upsert", err)
	}

	if _, err := tx.ExecContext(ctx, r.d.DropStaging(plan.Staging)); err != nil {
		return res, r.classify(plan.Table, "drop staging", err)
	}
	if err := tx.Commit(); err != nil {
		return res, r.classify(plan.Table, "commit", err)
	}
	return res, nil
}

// InsertStager stages rows with one prepared INSERT per row, batchSize rows
// per logged chunk.
func InsertStager(d sqlgen.Dialect, batchSize int, log *zap.Logger) Stager {
	return func(ctx context.Context, tx *sql.Tx, staging string, columns []string, rows [][]any) (int64, error) {
		ph := make([]string, len(columns))
		for i := range ph {
			ph[i] = d.Placeholder(i + 1)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(staging), strings.Join(sqlgen.QuoteAll(d, columns), ", "), strings.Join(ph, ", "))

		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		return storage.CopyInBatches(ctx, columns, rows, batchSize,
			func(ctx context.Context, columns []string, chunk [][]any) (int64, error) {
				var n int64
				for i, row := range chunk {
					if len(row) != len(columns) {
						return n, fmt.Errorf("row %d: length %d != columns length %d", i, len(row), len(columns))
					}
					if _, err := stmt.ExecContext(ctx, row...); err != nil {
						return n, fmt.Errorf("row %d: %w", i, err)
					}
					n++
				}
				return n, nil
			}, log)
	}
}

func wrapOp(_ string, op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
