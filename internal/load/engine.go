// Package load writes conformed batches to the destination through the
// idempotent upsert protocol.
package load

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/records"
	"staretl/internal/storage"
	"staretl/internal/transformer/builtin"
)

// Result counts what one Apply did. Staged equals
// ContentDuplicates + KeyConflicts + Inserted.
type Result struct {
	Staged            int64
	ContentDuplicates int64
	KeyConflicts      int64
	Inserted          int64
}

// Engine applies batches to one destination.
type Engine struct {
	repo storage.Repository
	log  *zap.Logger
}

// NewEngine returns an Engine writing to repo.
func NewEngine(repo storage.Repository, log *zap.Logger) *Engine {
	return &Engine{repo: repo, log: logging.OrNop(log)}
}

// Apply inserts the rows of b into table that are new by both content and
// primary key. Rows whose non-reference columns match an existing row are
// skipped, rows whose pk is already taken are skipped, and existing rows are
// never updated, so applying the same batch twice inserts nothing the second
// time.
//
// An empty batch returns a zero Result without touching the destination.
// Columns the destination does not have yield a *etlerr.SchemaMismatchError.
func (e *Engine) Apply(ctx context.Context, b records.Batch, table, pk string) (Result, error) {
	var res Result
	if b.Empty() {
		return res, nil
	}
	if err := checkBatch(b, table, pk); err != nil {
		return res, err
	}

	dest, err := e.repo.Columns(ctx, table)
	if err != nil {
		return res, err
	}
	if len(dest) == 0 {
		return res, &etlerr.SchemaMismatchError{Table: table, Msg: "table does not exist"}
	}
	have := make(map[string]struct{}, len(dest))
	for _, c := range dest {
		have[strings.ToLower(c)] = struct{}{}
	}
	var unknown []string
	for _, c := range b.Columns {
		if _, ok := have[strings.ToLower(c)]; !ok {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return res, &etlerr.SchemaMismatchError{Table: table, Columns: unknown, Msg: "columns not in destination"}
	}

	plan := storage.UpsertPlan{
		Table:      table,
		Staging:    stagingName(e.repo, table),
		Columns:    b.Columns,
		PrimaryKey: pk,
		ContentKey: builtin.ContentKey(b.Columns, pk),
	}
	start := time.Now()
	out, err := e.repo.Upsert(ctx, plan, b.Tuples())
	if err != nil {
		return res, fmt.Errorf("upsert %s: %w", table, err)
	}
	res = Result(out)
	e.log.Debug("upsert applied",
		zap.String("table", table),
		zap.String("staging", plan.Staging),
		zap.Int64("staged", res.Staged),
		zap.Int64("content_duplicates", res.ContentDuplicates),
		zap.Int64("key_conflicts", res.KeyConflicts),
		zap.Int64("inserted", res.Inserted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// checkBatch rejects batches the protocol cannot stage: a pk outside the
// header or rows carrying keys the header does not list.
func checkBatch(b records.Batch, table, pk string) error {
	if !b.HasColumn(pk) {
		return &etlerr.SchemaMismatchError{Table: table, Columns: []string{pk}, Msg: "primary key not in batch"}
	}
	header := make(map[string]struct{}, len(b.Columns))
	for _, c := range b.Columns {
		header[c] = struct{}{}
	}
	extra := map[string]struct{}{}
	for _, r := range b.Rows {
		for k := range r {
			if _, ok := header[k]; !ok {
				extra[k] = struct{}{}
			}
		}
	}
	if len(extra) == 0 {
		return nil
	}
	cols := make([]string, 0, len(extra))
	for k := range extra {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return &etlerr.SchemaMismatchError{Table: table, Columns: cols, Msg: "row columns outside batch header"}
}

// stagingName is unique per call so concurrent or crashed runs never share
// a scratch table.
func stagingName(repo storage.Repository, table string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	base := "stg_" + strings.ReplaceAll(table, ".", "_") + "_" + id
	return storage.StagingName(repo, base)
}
