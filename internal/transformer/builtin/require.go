package builtin

import "staretl/internal/records"

// Require removes any record missing a value for any of the specified fields.
type Require struct {
	Fields []string
}

// Apply returns a filtered slice containing only records that have all
// required fields present and non-empty. It filters in place.
func (r Require) Apply(in []records.Record) []records.Record {
	out := in[:0]
	for _, rec := range in {
		if r.Satisfied(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Satisfied reports whether rec carries every required field.
func (r Require) Satisfied(rec records.Record) bool {
	for _, f := range r.Fields {
		v, exists := rec[f]
		if !exists || v == nil || v == "" {
			return false
		}
	}
	return true
}
