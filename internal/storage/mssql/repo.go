// Package mssql implements a Microsoft SQL Server repository. Staged rows are
// bulk-copied into a session #temp table with the go-mssqldb CopyIn API and
// merged by the shared sqlstore protocol in the same transaction.
package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/storage"
	"staretl/internal/storage/sqlstore"
)

// Server error numbers mapped to schema mismatches.
const (
	errInvalidColumn = 207
	errInvalidObject = 208
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	BatchSize int
	Logger    *zap.Logger
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	p, err := msdsn.Parse(cfg.DSN)
	if err != nil {
		return nil, nil, etlerr.Configuration("destination.dsn", "mssql dsn: %v", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, etlerr.Connectivity(p.Host, "ping", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = storage.DefaultBatchSize
	}
	repo := sqlstore.New(db, sqlstore.Options{
		Dialect:   Dialect{},
		BatchSize: batch,
		Logger:    cfg.Logger,
		Stager:    bulkStager(batch, logging.OrNop(cfg.Logger)),
		Classify:  classify,
	})
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: repo, cfg: cfg}, closeFn, nil
}

// bulkStager streams rows into the #temp staging table with one bulk copy
// per batch.
func bulkStager(batchSize int, log *zap.Logger) sqlstore.Stager {
	return func(ctx context.Context, tx *sql.Tx, staging string, columns []string, rows [][]any) (int64, error) {
		return storage.CopyInBatches(ctx, columns, rows, batchSize,
			func(ctx context.Context, columns []string, chunk [][]any) (int64, error) {
				return bulkCopy(ctx, tx, staging, columns, chunk)
			}, log)
	}
}

func bulkCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func classify(table, op string, err error) error {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case errInvalidColumn, errInvalidObject:
			return &etlerr.SchemaMismatchError{Table: table, Msg: fmt.Sprintf("%s: %s", op, msErr.Message)}
		}
		return fmt.Errorf("mssql: %s: %w", op, err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return etlerr.Connectivity("destination", op, err)
	}
	return fmt.Errorf("mssql: %s: %w", op, err)
}
