// Package etl drives one run of the pipeline: extract the source collections,
// shape them into the star schema, drop orphaned facts and load every table
// in dependency order.
package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"staretl/internal/datasource"
	"staretl/internal/load"
	"staretl/internal/logging"
	"staretl/internal/metrics"
	"staretl/internal/records"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/transformer/builtin"
	"staretl/internal/transformer/star"
)

// DefaultJob labels metrics when Options.Job is empty.
const DefaultJob = "staretl"

// Options configures a Runner.
type Options struct {
	Job string
	// Registry defaults to schema.StarSchema().
	Registry  *schema.Registry
	BatchSize int
	Logger    *zap.Logger
}

// Runner executes pipeline runs against one source and one destination. The
// caller owns both and closes them.
type Runner struct {
	src    datasource.Collections
	repo   storage.Repository
	reg    *schema.Registry
	loader *load.Loader
	job    string
	log    *zap.Logger
}

// NewRunner returns a Runner reading from src and writing to repo.
func NewRunner(src datasource.Collections, repo storage.Repository, opt Options) *Runner {
	if opt.Job == "" {
		opt.Job = DefaultJob
	}
	if opt.Registry == nil {
		opt.Registry = schema.StarSchema()
	}
	log := logging.OrNop(opt.Logger)
	return &Runner{
		src:  src,
		repo: repo,
		reg:  opt.Registry,
		loader: load.NewLoader(opt.Registry, repo, load.Options{
			Job:       opt.Job,
			BatchSize: opt.BatchSize,
			Logger:    log,
		}),
		job: opt.Job,
		log: log,
	}
}

// Summary reports what a run did. It is returned even when the run fails,
// covering the steps completed before the failure.
type Summary struct {
	Extracted map[string]int
	Shaped    map[string]int
	Dropped   int
	Orphaned  map[string]int
	Loads     []load.Stats
	Elapsed   time.Duration
}

// Inserted sums the rows inserted across all loaded tables.
func (s Summary) Inserted() int64 {
	return lo.SumBy(s.Loads, func(st load.Stats) int64 { return st.Inserted })
}

// Run executes one full run. Each table load commits on its own: the first
// failing load aborts the loads after it and the tables already loaded stay
// loaded.
func (r *Runner) Run(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	sum = Summary{
		Extracted: map[string]int{},
		Shaped:    map[string]int{},
		Orphaned:  map[string]int{},
	}
	done := metrics.Step(r.job, "run")
	defer func() {
		sum.Elapsed = time.Since(start)
		done(err)
		r.logSummary(sum, err)
	}()

	if err = r.step("schema", func() error { return r.repo.EnsureTables(ctx, r.reg) }); err != nil {
		return sum, fmt.Errorf("create tables: %w", err)
	}

	var docs map[string][]records.Record
	if err = r.step("extract", func() error {
		var e error
		docs, e = r.extract(ctx)
		return e
	}); err != nil {
		return sum, err
	}
	for name, d := range docs {
		sum.Extracted[name] = len(d)
		metrics.RecordRows(r.job, name, metrics.KindExtracted, int64(len(d)))
	}

	shaped := metrics.Step(r.job, "shape")
	batches, dropped := r.shape(docs)
	sum.Dropped = dropped
	shaped(nil)

	for table, n := range cleanOrphans(batches) {
		sum.Orphaned[table] = n
		metrics.RecordRows(r.job, table, metrics.KindOrphaned, int64(n))
		if n > 0 {
			r.log.Warn("orphaned fact rows dropped", zap.String("table", table), zap.Int("rows", n))
		}
	}
	for table, b := range batches {
		sum.Shaped[table] = b.Len()
		metrics.RecordRows(r.job, table, metrics.KindShaped, int64(b.Len()))
	}

	for _, table := range schema.LoadOrder {
		var st load.Stats
		err = r.step("load:"+table, func() error {
			var e error
			st, e = r.loader.Load(ctx, batches[table], table, "")
			return e
		})
		if err != nil {
			return sum, fmt.Errorf("load %s: %w", table, err)
		}
		sum.Loads = append(sum.Loads, st)
	}

	if err = r.step("index", func() error { return r.repo.EnsureIndexes(ctx, r.reg) }); err != nil {
		return sum, fmt.Errorf("create indexes: %w", err)
	}
	return sum, nil
}

func (r *Runner) step(name string, fn func() error) error {
	done := metrics.Step(r.job, name)
	err := fn()
	done(err)
	return err
}

// extract fetches the three collections concurrently.
func (r *Runner) extract(ctx context.Context) (map[string][]records.Record, error) {
	names := []string{datasource.Users, datasource.Products, datasource.Carts}
	out := make([][]records.Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			docs, err := r.src.Fetch(gctx, name)
			if err != nil {
				return fmt.Errorf("extract %s: %w", name, err)
			}
			out[i] = docs
			r.log.Info("collection extracted", zap.String("collection", name), zap.Int("documents", len(docs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Associate(lo.Range(len(names)), func(i int) (string, []records.Record) {
		return names[i], out[i]
	}), nil
}

func (r *Runner) shape(docs map[string][]records.Record) (map[string]records.Batch, int) {
	s := star.New(r.log)
	sales, items := s.Sales(docs[datasource.Carts])
	batches := map[string]records.Batch{
		schema.DimUsers:       s.Users(docs[datasource.Users]),
		schema.DimProducts:    s.Products(docs[datasource.Products]),
		schema.FactSales:      sales,
		schema.FactSalesItems: items,
		schema.DimDate:        star.Dates(sales),
	}
	for _, dq := range s.Drops() {
		metrics.RecordRows(r.job, dq.Table, metrics.KindDropped, int64(dq.Rows))
	}
	return batches, s.Dropped()
}

// cleanOrphans drops fact rows that reference a dimension row this run did
// not produce: sales need a known user and date, items need a kept sale, a
// known product and a known user. A sale repeating an earlier sale's content
// is not loaded, so items only follow sales that survive content dedup.
// It returns the rows dropped per table.
func cleanOrphans(b map[string]records.Batch) map[string]int {
	users := keys(b[schema.DimUsers], "user_id")
	dates := keys(b[schema.DimDate], "date_id")
	products := keys(b[schema.DimProducts], "product_id")

	sales := b[schema.FactSales]
	cleanSales := sales.Filter(func(r records.Record) bool {
		return has(users, r["user_id"]) && has(dates, r["date_id"])
	})
	loadable, _ := builtin.DedupContent(cleanSales, "sale_id")
	saleIDs := keys(loadable, "sale_id")

	items := b[schema.FactSalesItems]
	cleanItems := items.Filter(func(r records.Record) bool {
		return has(saleIDs, r["sale_id"]) && has(products, r["product_id"]) && has(users, r["user_id"])
	})

	b[schema.FactSales] = cleanSales
	b[schema.FactSalesItems] = cleanItems
	return map[string]int{
		schema.FactSales:      sales.Len() - cleanSales.Len(),
		schema.FactSalesItems: items.Len() - cleanItems.Len(),
	}
}

func keys(b records.Batch, col string) map[any]struct{} {
	return lo.SliceToMap(b.Rows, func(r records.Record) (any, struct{}) {
		return r[col], struct{}{}
	})
}

func has(set map[any]struct{}, v any) bool {
	if v == nil {
		return false
	}
	_, ok := set[v]
	return ok
}

func (r *Runner) logSummary(sum Summary, err error) {
	fields := []zap.Field{
		zap.String("job", r.job),
		zap.String("inserted", humanize.Comma(sum.Inserted())),
		zap.Int("dropped", sum.Dropped),
		zap.Int("orphaned", lo.Sum(lo.Values(sum.Orphaned))),
		zap.Duration("elapsed", sum.Elapsed),
	}
	for _, st := range sum.Loads {
		fields = append(fields, zap.String(st.Table, fmt.Sprintf("%s inserted, %s duplicates, %s conflicts",
			humanize.Comma(st.Inserted), humanize.Comma(st.Duplicates()), humanize.Comma(st.KeyConflicts))))
	}
	if err != nil {
		r.log.Error("run failed", append(fields, zap.Error(err))...)
		return
	}
	r.log.Info("run complete", fields...)
}
