// Package star shapes raw source documents into the batches of the star
// schema: the user, product and date dimensions and the sales and sales-item
// facts.
//
// Shaping is lenient. Rows that lack a usable identifier or date are dropped,
// counted and logged; they never abort a run.
package star

import (
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/records"
	"staretl/internal/transformer"
	"staretl/internal/transformer/builtin"
)

// UnknownBrand replaces a missing or empty product brand.
const UnknownBrand = "Unknown"

// sourceID is the natural identifier carried by every source document.
const sourceID = "id"

// Shaper turns source documents into star-schema batches and remembers the
// rows it had to drop along the way. It is not safe for concurrent use.
type Shaper struct {
	log     *zap.Logger
	flatten builtin.Flatten
	drops   []*etlerr.DataQualityError
}

// New returns a Shaper that logs drops on log.
func New(log *zap.Logger) *Shaper {
	return &Shaper{log: logging.OrNop(log)}
}

// Drops returns the data quality problems recorded so far.
func (s *Shaper) Drops() []*etlerr.DataQualityError { return s.drops }

// Dropped sums the rows dropped so far.
func (s *Shaper) Dropped() int {
	n := 0
	for _, d := range s.drops {
		n += d.Rows
	}
	return n
}

func (s *Shaper) drop(table, reason string, n int) {
	if n == 0 {
		return
	}
	dq := &etlerr.DataQualityError{Table: table, Reason: reason, Rows: n}
	s.drops = append(s.drops, dq)
	s.log.Warn("rows dropped while shaping",
		zap.String("table", table), zap.String("reason", reason), zap.Int("rows", n))
}

// dimension flattens and normalizes docs, renames the source id to pk and
// keeps the first row for every key. Rows whose id is missing or not an
// integer are dropped.
func (s *Shaper) dimension(table, pk string, docs []records.Record, fix func(records.Record)) records.Batch {
	shaped := transformer.Chain{s.flatten, builtin.Normalize{}}.Apply(docs)
	withID := builtin.Require{Fields: []string{sourceID}}.Apply(shaped)
	missing := len(shaped) - len(withID)

	rows := make([]records.Record, 0, len(withID))
	seen := make(map[int64]struct{}, len(withID))
	dups := 0
	for _, r := range withID {
		id, ok := intID(r[sourceID])
		if !ok {
			missing++
			continue
		}
		if _, dup := seen[id]; dup {
			dups++
			continue
		}
		seen[id] = struct{}{}
		delete(r, sourceID)
		r[pk] = id
		if fix != nil {
			fix(r)
		}
		rows = append(rows, r)
	}
	s.drop(table, "missing or invalid id", missing)
	if dups > 0 {
		s.log.Debug("duplicate source ids skipped", zap.String("table", table), zap.Int("rows", dups))
	}
	return records.NewBatch(rows)
}

// intID reads an identifier as int64. Fractional and non-numeric values are
// rejected.
func intID(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
