// Package json decodes exported document collections into records.
//
// Three layouts are accepted, and may be mixed in one stream:
//
//   - a top-level array of objects: [{"id":1},{"id":2}]
//   - an envelope object holding the array under a known name, as REST APIs
//     return it: {"users":[...],"total":2}
//   - newline-delimited objects (NDJSON), one document per value
//
// Numbers are kept as json.Number so identifiers and amounts are not rounded
// through float64 before shaping.
package json

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"staretl/internal/records"
)

// Options tunes decoding.
type Options struct {
	// Envelope names the field that holds the documents when the top-level
	// value is an object, e.g. "users". An object without that field is taken
	// as a single document.
	Envelope string
}

// Decoder reads documents one top-level value at a time.
type Decoder struct {
	dec     *json.Decoder
	opt     Options
	pending []any
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder{dec: d, opt: opt}
}

// Next returns the next document. Arrays and envelopes are expanded element
// by element. Top-level scalars are skipped. io.EOF marks the end of input.
func (d *Decoder) Next() (records.Record, error) {
	for {
		if len(d.pending) > 0 {
			v := d.pending[0]
			d.pending = d.pending[1:]
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("json parser: array element is %T, not an object", v)
			}
			return records.Record(obj), nil
		}

		var raw any
		if err := d.dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("json parser: decode: %w", err)
		}
		switch v := raw.(type) {
		case []any:
			d.pending = v
		case map[string]any:
			if d.opt.Envelope != "" {
				if inner, ok := v[d.opt.Envelope]; ok {
					arr, ok := inner.([]any)
					if !ok {
						return nil, fmt.Errorf("json parser: envelope field %q is %T, not an array", d.opt.Envelope, inner)
					}
					d.pending = arr
					continue
				}
			}
			return records.Record(v), nil
		}
	}
}

// DecodeAll reads every document from r. Empty input yields (nil, nil).
func DecodeAll(r io.Reader, opt Options) ([]records.Record, error) {
	d := NewDecoder(r, opt)
	var out []records.Record
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
