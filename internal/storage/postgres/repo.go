// Package postgres implements the destination contract on Postgres using
// pgx v5. Staged rows are streamed with COPY into a session temp table; the
// two exclusion phases then run as plain SQL inside the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/storage/sqlgen"
)

// SQLSTATE codes mapped to schema mismatches.
const (
	codeUndefinedColumn = "42703"
	codeUndefinedTable  = "42P01"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	BatchSize int    // rows per COPY round trip into staging
	Logger    *zap.Logger
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool    *pgxpool.Pool
	cfg     Config
	dialect Dialect
	log     *zap.Logger
}

// NewRepository opens a pool, pings it and returns a Close function for
// cleanup. Failing to reach the server is a ConnectivityError.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, etlerr.Configuration("destination.dsn", "postgres DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, etlerr.Connectivity("destination", "ping", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg, log: logging.OrNop(cfg.Logger)}, closeFn, nil
}

// Upsert runs the staging, exclusion and insert steps for plan in one
// transaction. The staging table is created inside the transaction, so a
// rollback removes it; a deferred drop on the same connection covers the
// remaining paths.
func (r *Repository) Upsert(ctx context.Context, plan storage.UpsertPlan, rows [][]any) (storage.UpsertResult, error) {
	var res storage.UpsertResult
	if err := plan.Validate(); err != nil {
		return res, err
	}
	if len(rows) == 0 {
		return res, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return res, etlerr.Connectivity("destination", "acquire", err)
	}
	defer conn.Release()
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), r.dialect.DropStaging(plan.Staging))
	}()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return res, etlerr.Connectivity("destination", "begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range r.dialect.CreateStaging(plan.Staging, plan.Table, plan.Columns) {
		if _, err := tx.Exec(ctx, q); err != nil {
			return res, classify(plan.Table, "create staging", err)
		}
	}

	cols, staged := storage.WithRowNumbers(plan.Columns, rows)
	res.Staged, err = storage.CopyInBatches(ctx, cols, staged, r.cfg.BatchSize,
		func(ctx context.Context, columns []string, chunk [][]any) (int64, error) {
			return tx.CopyFrom(ctx, pgx.Identifier{plan.Staging}, columns, pgx.CopyFromRows(chunk))
		}, r.log)
	if err != nil {
		return res, classify(plan.Table, "copy into staging", err)
	}

	exec := func(ctx context.Context, q string) (int64, error) {
		tag, err := tx.Exec(ctx, q)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	if err := sqlgen.RunPhases(ctx, r.dialect, plan, exec, &res); err != nil {
		return res, classify(plan.Table, "upsert", err)
	}

	if _, err := tx.Exec(ctx, r.dialect.DropStaging(plan.Staging)); err != nil {
		return res, classify(plan.Table, "drop staging", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return res, classify(plan.Table, "commit", err)
	}
	return res, nil
}

// StagingName implements storage.StagingNamer.
func (r *Repository) StagingName(base string) string { return r.dialect.StagingName(base) }

// Columns lists the columns of table in ordinal order.
func (r *Repository) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.pool.Query(ctx, r.dialect.ColumnsQuery(), table)
	if err != nil {
		return nil, classify(table, "describe", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(table, "describe", err)
	}
	return cols, nil
}

// EnsureTables creates the registered tables, referenced tables first.
func (r *Repository) EnsureTables(ctx context.Context, reg *schema.Registry) error {
	for _, t := range reg.Tables() {
		stmt, err := r.dialect.CreateTable(t)
		if err != nil {
			return err
		}
		if err := r.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// EnsureIndexes creates the registered secondary indexes.
func (r *Repository) EnsureIndexes(ctx context.Context, reg *schema.Registry) error {
	for _, ix := range reg.Indexes() {
		if err := r.Exec(ctx, r.dialect.CreateIndex(ix)); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return classify("", "exec", err)
	}
	return nil
}

// classify maps driver errors onto the pipeline's error kinds. Server-side
// errors keep their detail and SQLSTATE in the message.
func classify(table, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedColumn, codeUndefinedTable:
			return &etlerr.SchemaMismatchError{Table: table, Msg: fmt.Sprintf("%s: %s", op, pgErr.Message)}
		}
		if pgErr.Detail != "" {
			return fmt.Errorf("%s: %s: %s (%s): %w", op, pgErr.Message, pgErr.Detail, pgErr.Code, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return etlerr.Connectivity("destination", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
