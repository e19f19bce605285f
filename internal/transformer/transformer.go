// Package transformer composes record transforms. Shaping code builds a
// Chain of builtin transforms per collection and runs it over the extracted
// records before the result is turned into a records.Batch.
package transformer

import "staretl/internal/records"

// Transformer rewrites, filters or annotates a slice of records. It may work
// in place and return a reslice of its input.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Func adapts a plain function to Transformer.
type Func func([]records.Record) []records.Record

func (f Func) Apply(in []records.Record) []records.Record { return f(in) }

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}

// Batch runs the chain and returns the result as a batch whose header is the
// union of the surviving records' columns.
func (c Chain) Batch(in []records.Record) records.Batch {
	return records.NewBatch(c.Apply(in))
}
