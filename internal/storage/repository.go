// Package storage contains the destination contract shared by every backend,
// the backend registry and the staging helpers used by the upsert protocol.
//
// Backends register a Factory under a kind name from their init functions;
// callers obtain a Repository through New and stay backend-agnostic.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"staretl/internal/schema"
)

// RowNumColumn is the ordinal column added to every staging area. It records
// each row's position in the batch so that the earliest row wins when staged
// rows share a primary key.
const RowNumColumn = "__rownum"

// UpsertPlan describes one idempotent insert into Table.
type UpsertPlan struct {
	// Table is the destination table.
	Table string
	// Staging is the unique scratch name for this call.
	Staging string
	// Columns is the ordered column list; rows passed to Upsert align to it.
	Columns []string
	// PrimaryKey is the conflict column.
	PrimaryKey string
	// ContentKey lists the columns compared, null-safe, against existing rows.
	ContentKey []string
}

// Validate checks the plan for internal consistency.
func (p UpsertPlan) Validate() error {
	if p.Table == "" || p.Staging == "" {
		return fmt.Errorf("storage: plan needs table and staging names")
	}
	if len(p.Columns) == 0 {
		return fmt.Errorf("storage: plan for %s has no columns", p.Table)
	}
	cols := make(map[string]struct{}, len(p.Columns))
	for _, c := range p.Columns {
		cols[c] = struct{}{}
	}
	if _, ok := cols[p.PrimaryKey]; !ok {
		return fmt.Errorf("storage: plan for %s: primary key %q not in columns", p.Table, p.PrimaryKey)
	}
	if len(p.ContentKey) == 0 {
		return fmt.Errorf("storage: plan for %s has an empty content key", p.Table)
	}
	for _, c := range p.ContentKey {
		if _, ok := cols[c]; !ok {
			return fmt.Errorf("storage: plan for %s: content column %q not in columns", p.Table, c)
		}
	}
	return nil
}

// UpsertResult counts what happened to the staged rows.
type UpsertResult struct {
	Staged            int64
	ContentDuplicates int64
	KeyConflicts      int64
	Inserted          int64
}

// Repository is the destination contract.
//
// Upsert must run the whole protocol in one transaction: stage rows into
// plan.Staging, exclude staged rows whose content key matches an existing
// row (phase 1), insert the remaining rows whose primary key is not taken
// (phase 2, earliest staged row wins, existing rows are never updated), and
// remove the staging area on every path.
type Repository interface {
	// Exec runs a single statement outside the upsert protocol.
	Exec(ctx context.Context, sql string) error
	// Columns lists the columns of a destination table.
	Columns(ctx context.Context, table string) ([]string, error)
	// EnsureTables creates every registered table that does not exist yet.
	EnsureTables(ctx context.Context, reg *schema.Registry) error
	// EnsureIndexes creates every registered index that does not exist yet.
	EnsureIndexes(ctx context.Context, reg *schema.Registry) error
	// Upsert applies plan to rows (aligned to plan.Columns).
	Upsert(ctx context.Context, plan UpsertPlan, rows [][]any) (UpsertResult, error)
	// Close releases the connection pool.
	Close()
}

// StagingNamer is implemented by backends whose scratch tables need a
// backend-specific name, such as the '#' prefix of SQL Server temp tables.
type StagingNamer interface {
	StagingName(base string) string
}

// StagingName returns the scratch name repo wants for base.
func StagingName(repo Repository, base string) string {
	if n, ok := repo.(StagingNamer); ok {
		return n.StagingName(base)
	}
	return base
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
	// BatchSize bounds the rows sent per staging round trip.
	BatchSize int
	Logger    *zap.Logger
}

// Factory constructs a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New builds the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
