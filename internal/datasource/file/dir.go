package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"staretl/internal/datasource"
	"staretl/internal/etlerr"
	"staretl/internal/logging"
	jsonparser "staretl/internal/parser/json"
	"staretl/internal/records"
)

// Dir serves collections from <dir>/<collection>.json. Each file holds a
// JSON array, an envelope object keyed by the collection name, or NDJSON.
type Dir struct {
	root string
	log  *zap.Logger
}

// NewDir checks that root is a directory.
func NewDir(root string, log *zap.Logger) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, etlerr.Configuration("source.dir", "directory must not be empty")
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, etlerr.Connectivity("source", "stat "+root, err)
	}
	if !fi.IsDir() {
		return nil, etlerr.Configuration("source.dir", "%s is not a directory", root)
	}
	return &Dir{root: root, log: logging.OrNop(log)}, nil
}

// Fetch decodes <root>/<name>.json. A missing file is an empty collection.
func (d *Dir) Fetch(ctx context.Context, name string) ([]records.Record, error) {
	path := filepath.Join(d.root, name+".json")
	rc, err := NewLocal(path).Open(ctx)
	if errors.Is(err, os.ErrNotExist) {
		d.log.Warn("collection export missing, treating as empty", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	docs, err := jsonparser.DecodeAll(rc, jsonparser.Options{Envelope: name})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	d.log.Debug("collection read", zap.String("path", path), zap.Int("documents", len(docs)))
	return docs, nil
}

// Close is a no-op.
func (d *Dir) Close(context.Context) error { return nil }

func init() {
	datasource.Register("file", func(_ context.Context, cfg datasource.Config) (datasource.Collections, error) {
		return NewDir(cfg.Dir, cfg.Logger)
	})
}
