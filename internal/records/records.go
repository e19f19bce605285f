// Package records holds the row model passed between extraction, shaping and
// loading.
package records

// Record is one row keyed by column name. Values are scalars by the time a
// record reaches the load layer: nil, bool, int64, float64, string or
// time.Time.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is an ordered sequence of rows sharing one column header. Columns
// fixes the column order used when rows are turned into positional tuples.
type Batch struct {
	Columns []string
	Rows    []Record
}

// NewBatch builds a Batch whose header is the union of the row keys in first
// seen order.
func NewBatch(rows []Record) Batch {
	return Batch{Columns: ColumnsOf(rows), Rows: rows}
}

// ColumnsOf returns the union of keys across rows, in first seen order. Keys
// within a single record are visited in sorted order so the result does not
// depend on map iteration.
func ColumnsOf(rows []Record) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for _, k := range sortedKeys(r) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// Len reports the number of rows.
func (b Batch) Len() int { return len(b.Rows) }

// Empty reports whether the batch carries no rows.
func (b Batch) Empty() bool { return len(b.Rows) == 0 }

// HasColumn reports whether name is part of the header.
func (b Batch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Tuples returns the rows as positional tuples aligned to b.Columns. Missing
// keys become nil.
func (b Batch) Tuples() [][]any {
	out := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		row := make([]any, len(b.Columns))
		for j, c := range b.Columns {
			row[j] = r[c]
		}
		out[i] = row
	}
	return out
}

// Filter returns a batch with the same header and only the rows keep accepts.
func (b Batch) Filter(keep func(Record) bool) Batch {
	out := make([]Record, 0, len(b.Rows))
	for _, r := range b.Rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Batch{Columns: b.Columns, Rows: out}
}
