// Package mysql implements a MySQL-backed storage.Repository with
// go-sql-driver/mysql. Rows are staged into a session TEMPORARY table with
// prepared INSERTs and merged by the shared sqlstore protocol.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/storage/sqlstore"
)

// Server error numbers mapped to schema mismatches.
const (
	errBadField     = 1054
	errNoSuchTable  = 1146
	errUnknownTable = 1051
)

// Config holds MySQL repository configuration.
type Config struct {
	DSN       string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/warehouse
	BatchSize int
	Logger    *zap.Logger
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
	cfg Config
}

// NewRepository validates the DSN, opens a pool and pings it. parseTime is
// forced on so DATETIME columns scan into time.Time.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dc, err := mysqldrv.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, etlerr.Configuration("destination.dsn", "mysql dsn: %v", err)
	}
	dc.ParseTime = true

	db, err := sql.Open("mysql", dc.FormatDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, etlerr.Connectivity(dc.Addr, "ping", err)
	}

	repo := sqlstore.New(db, sqlstore.Options{
		Dialect:   Dialect{},
		BatchSize: cfg.BatchSize,
		Logger:    cfg.Logger,
		Classify:  classify,
	})
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: repo, cfg: cfg}, closeFn, nil
}

func classify(table, op string, err error) error {
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errBadField, errNoSuchTable, errUnknownTable:
			return &etlerr.SchemaMismatchError{Table: table, Msg: fmt.Sprintf("%s: %s", op, myErr.Message)}
		}
		return fmt.Errorf("mysql: %s: %w", op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldrv.ErrInvalidConn) {
		return etlerr.Connectivity("destination", op, err)
	}
	return fmt.Errorf("mysql: %s: %w", op, err)
}
