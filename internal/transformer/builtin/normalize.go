package builtin

import (
	"strings"

	"staretl/internal/records"
)

// Normalize trims string values and turns no-break spaces, including the
// mis-decoded "\u00c2\u00a0" pair Latin-1 round trips leave behind, into
// plain spaces.
type Normalize struct{}

var nbsp = strings.NewReplacer("\u00c2\u00a0", " ", "\u00a0", " ")

func (Normalize) Apply(in []records.Record) []records.Record {
	for _, r := range in {
		for k, v := range r {
			if s, ok := v.(string); ok {
				r[k] = strings.TrimSpace(nbsp.Replace(s))
			}
		}
	}
	return in
}
