// Package datasource defines how the pipeline reads its source documents and
// keeps a registry of source kinds, mirroring the storage registry.
package datasource

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"staretl/internal/records"
)

// Names of the source collections.
const (
	Users    = "users"
	Products = "products"
	Carts    = "carts"
)

// Source opens a byte stream, such as an exported collection file.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Collections returns every document of a named collection. Documents are
// plain Go values: nested documents are map[string]any, lists are []any.
type Collections interface {
	Fetch(ctx context.Context, name string) ([]records.Record, error)
	Close(ctx context.Context) error
}

// Config selects and configures a source kind.
type Config struct {
	Kind string
	// URI is the document store connection string (mongo) or the REST base
	// URL (http).
	URI string
	// Database is the catalog holding the collections (mongo).
	Database string
	// Dir holds <collection>.json exports (file).
	Dir     string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Factory opens Collections for a Config.
type Factory func(ctx context.Context, cfg Config) (Collections, error)

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

// New opens the Collections registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Collections, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
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
