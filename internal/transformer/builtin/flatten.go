package builtin

import (
	"math"
	"sort"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"staretl/internal/records"
)

// DocumentID is the store-assigned identifier dropped by Flatten.
const DocumentID = "_id"

// Flatten turns nested documents into flat records:
//
//   - nested maps become parent<Sep>child columns, recursively
//   - column names are folded to lower-case ASCII ("Nome Ú" -> "nome u")
//   - lists and any other non-scalar values become JSON strings
//   - NaN and ±Inf become nil
//   - the document identifier "_id" is dropped
//
// When two source fields fold to the same name, the first one in sorted
// source-key order wins.
type Flatten struct {
	// Sep joins parent and child names; default "_".
	Sep string
}

// Apply flattens every record and returns new records; the input is not
// modified.
func (f Flatten) Apply(in []records.Record) []records.Record {
	out := make([]records.Record, len(in))
	for i, r := range in {
		out[i] = f.Record(r)
	}
	return out
}

// Record flattens a single document.
func (f Flatten) Record(doc map[string]any) records.Record {
	sep := f.Sep
	if sep == "" {
		sep = "_"
	}
	out := make(records.Record, len(doc))
	folder := newFolder()
	flattenInto(out, "", doc, sep, folder, true)
	return out
}

func flattenInto(out records.Record, prefix string, doc map[string]any, sep string, fold *folder, top bool) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if top && k == DocumentID {
			continue
		}
		name := fold.name(k)
		if prefix != "" {
			name = prefix + sep + name
		}
		switch v := doc[k].(type) {
		case map[string]any:
			flattenInto(out, name, v, sep, fold, false)
		case records.Record:
			flattenInto(out, name, v, sep, fold, false)
		default:
			if _, dup := out[name]; dup {
				continue
			}
			out[name] = Scalar(v)
		}
	}
}

// Scalar maps a decoded document value to a column value: NaN/Inf to nil,
// lists and maps to their JSON text, everything else unchanged.
func Scalar(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int32, int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case json.Number:
		return x
	case []any, map[string]any, records.Record:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return x
	}
}

// folder lower-cases names and strips combining marks. It is not safe for
// concurrent use; each Flatten call builds its own.
type folder struct {
	t     transform.Transformer
	lower cases.Caser
	cache map[string]string
}

func newFolder() *folder {
	return &folder{
		t:     transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		lower: cases.Lower(language.Und),
		cache: map[string]string{},
	}
}

func (f *folder) name(s string) string {
	if v, ok := f.cache[s]; ok {
		return v
	}
	folded, _, err := transform.String(f.t, s)
	if err != nil {
		folded = s
	}
	v := f.lower.String(strings.TrimSpace(folded))
	f.cache[s] = v
	return v
}

// FoldName applies Flatten's column-name folding to a single name.
func FoldName(s string) string { return newFolder().name(s) }
