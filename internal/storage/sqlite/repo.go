// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc driver. SQLite has no bulk-load API
// like Postgres COPY, so staging uses prepared INSERTs inside the upsert
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"staretl/internal/etlerr"
	"staretl/internal/storage/sqlstore"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:warehouse.db"
	//   "warehouse.db" (interpreted by the driver)
	DSN       string
	BatchSize int
	Logger    *zap.Logger
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Repository
	cfg Config
}

// NewRepository opens a SQLite database using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, etlerr.Configuration("destination.dsn", "sqlite DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Temp tables and PRAGMAs are per connection; one connection keeps
	// them consistent and serializes writers.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, etlerr.Connectivity("destination", "ping", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
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

// classify maps SQLite error text onto the pipeline's error kinds; the
// driver reports missing objects with the generic SQLITE_ERROR code.
func classify(table, op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column named"):
		return &etlerr.SchemaMismatchError{Table: table, Msg: fmt.Sprintf("%s: %s", op, msg)}
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
