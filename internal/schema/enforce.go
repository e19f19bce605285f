package schema

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/records"
)

// Enforcer conforms batches to the registered column list of a table.
type Enforcer struct {
	reg *Registry
	log *zap.Logger
}

// NewEnforcer returns an Enforcer backed by reg.
func NewEnforcer(reg *Registry, log *zap.Logger) *Enforcer {
	return &Enforcer{reg: reg, log: logging.OrNop(log)}
}

// Enforce returns a new batch whose header is exactly the registered column
// list of table, in registered order. Incoming column names are lower-cased,
// registered columns the batch lacks are filled with nil and unregistered
// columns are dropped. When two incoming columns lower-case to the same name
// the one listed first in the header wins.
//
// An unregistered table yields the input batch unchanged together with a
// *etlerr.ConfigurationError, which is also logged.
func (e *Enforcer) Enforce(b records.Batch, table string) (records.Batch, error) {
	cols, ok := e.reg.Schema(table)
	if !ok {
		err := etlerr.Configuration("table", "no schema registered for %q", table)
		e.log.Error("schema enforcement skipped", zap.String("table", table), zap.Error(err))
		return b, err
	}

	lower := cases.Lower(language.Und)
	source := make(map[string]string, len(b.Columns)) // registered name -> incoming name
	for _, in := range b.Columns {
		name := lower.String(strings.TrimSpace(in))
		if prev, dup := source[name]; dup {
			e.log.Warn("column name collision after lower-casing",
				zap.String("table", table), zap.String("kept", prev), zap.String("dropped", in))
			continue
		}
		source[name] = in
	}

	var dropped []string
	registered := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		registered[c] = struct{}{}
	}
	for name, in := range source {
		if _, ok := registered[name]; !ok {
			dropped = append(dropped, in)
		}
	}
	if len(dropped) > 0 {
		e.log.Debug("dropping unregistered columns", zap.String("table", table), zap.Strings("columns", dropped))
	}

	out := records.Batch{Columns: cols, Rows: make([]records.Record, len(b.Rows))}
	for i, r := range b.Rows {
		row := make(records.Record, len(cols))
		for _, c := range cols {
			if in, ok := source[c]; ok {
				row[c] = r[in]
			} else {
				row[c] = nil
			}
		}
		out.Rows[i] = row
	}
	return out, nil
}
