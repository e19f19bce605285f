package builtin

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"

	"staretl/internal/records"
	"staretl/internal/schema"
)

// Coerce converts field values to logical column types. Types maps a field to
// one of the schema types (integer, numeric, text, date, timestamp, boolean)
// or the short aliases int, float, string, bool. Values that cannot be
// converted become nil.
type Coerce struct {
	Types map[string]string
	// Layout, when set, is tried first for date and timestamp strings.
	Layout string
}

// CoerceFor returns a Coerce for every column of t.
func CoerceFor(t schema.Table) Coerce {
	types := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		types[c.Name] = c.Type
	}
	return Coerce{Types: types}
}

// Apply coerces in place and returns in.
func (c Coerce) Apply(in []records.Record) []records.Record {
	out, _ := c.Convert(in)
	return out
}

// Convert coerces in place and reports how many non-nil cells could not be
// converted and were set to nil.
func (c Coerce) Convert(in []records.Record) ([]records.Record, int) {
	if len(c.Types) == 0 {
		return in, 0
	}
	invalid := 0
	for _, r := range in {
		for field, typ := range c.Types {
			v, ok := r[field]
			if !ok || v == nil {
				continue
			}
			cv, err := c.value(typ, v)
			if err != nil {
				r[field] = nil
				invalid++
				continue
			}
			r[field] = cv
		}
	}
	return in, invalid
}

func (c Coerce) value(typ string, v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	switch strings.ToLower(typ) {
	case schema.TypeInteger, "int":
		if f, ok := v.(float64); ok {
			return int64(f), nil
		}
		if s, ok := v.(string); ok && strings.ContainsAny(s, ".eE") {
			f, err := cast.ToFloat64E(s)
			return int64(f), err
		}
		return cast.ToInt64E(v)
	case schema.TypeNumeric, "float":
		return cast.ToFloat64E(v)
	case schema.TypeBoolean, "bool":
		return cast.ToBoolE(v)
	case schema.TypeDate, schema.TypeTimestamp:
		if s, ok := v.(string); ok && c.Layout != "" {
			if t, err := time.Parse(c.Layout, s); err == nil {
				return t, nil
			}
		}
		return cast.ToTimeE(v)
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return cast.ToStringE(v)
	}
}
