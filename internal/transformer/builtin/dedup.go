// Package builtin contains reusable ETL transformers.
//
// DeDup is the policy-driven de-duplication transformer for the pipeline. It
// collapses duplicate records by a configured key and chooses a winner
// according to a configurable policy:
//
//   - "keep-first"   : keep the earliest occurrence in the batch
//   - "keep-last"    : keep the latest occurrence in the batch (default)
//   - "most-complete": keep the record that has the most non-empty fields;
//     ties break by "keep-last"
//
// This runs in-memory on a single batch of records, before the batch reaches
// the database, so a load never conflicts with itself. The destination still
// maintains PRIMARY KEY constraints as a backstop.
//
// Keys: a record's key is the type-tagged encoding of the configured fields.
// nil encodes as its own tag, so two nulls are equal and a null never equals
// a value. Integral floats encode like integers, which keeps 2 and 2.0 equal
// across sources that disagree on number types. Encodings are bucketed by
// their xxh3 hash and compared byte-for-byte within a bucket.
package builtin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"staretl/internal/records"
)

// DeDup implements a configurable, in-memory de-duplication policy.
type DeDup struct {
	// Keys are the field names that form the duplicate key, e.g. the content
	// key of a table.
	Keys []string

	// Policy selects the winner among duplicates: "keep-first", "keep-last",
	// or "most-complete" (default is "keep-last").
	Policy string

	// PreferFields optionally lists fields that should weigh more heavily in
	// "most-complete" selection; present/non-empty values in these fields add
	// an extra weight. This is a soft signal; ties still break by keep-last.
	PreferFields []string
}

// Apply executes the de-duplication and returns a new slice containing only
// the winning records for each key, in the input order of the winners.
// Records missing a key field are passed through after the winners.
func (d DeDup) Apply(in []records.Record) []records.Record {
	if len(in) == 0 || len(d.Keys) == 0 {
		// Nothing to do; return input as-is.
		return in
	}

	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = "keep-last"
	}

	type slot struct {
		key   []byte
		index int // original position in input (0-based)
		score int // completeness score (for most-complete)
	}

	// Buckets by hash; each bucket holds the distinct keys seen with that hash.
	buckets := make(map[uint64][]*slot, len(in))

	prefer := make(map[string]struct{}, len(d.PreferFields))
	for _, f := range d.PreferFields {
		prefer[f] = struct{}{}
	}

	scoreOf := func(r records.Record) int {
		// Count non-empty values; nil / "" don't count.
		score, bonus := 0, 0
		for k, v := range r {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			score++
			if _, ok := prefer[k]; ok {
				bonus++
			}
		}
		return score*10 + bonus
	}

	var passthrough []int
	var buf []byte
	for i, r := range in {
		var ok bool
		buf, ok = appendKey(buf[:0], r, d.Keys)
		if !ok {
			passthrough = append(passthrough, i)
			continue
		}
		h := xxh3.Hash(buf)

		var prev *slot
		for _, s := range buckets[h] {
			if bytes.Equal(s.key, buf) {
				prev = s
				break
			}
		}
		if prev == nil {
			s := &slot{key: append([]byte(nil), buf...), index: i}
			if policy == "most-complete" {
				s.score = scoreOf(r)
			}
			buckets[h] = append(buckets[h], s)
			continue
		}

		switch policy {
		case "keep-first":
			// earliest already holds the slot
		case "most-complete":
			if sc := scoreOf(r); sc >= prev.score {
				prev.score, prev.index = sc, i
			}
		default: // "keep-last"
			prev.index = i
		}
	}

	indexes := make([]int, 0, len(in))
	for _, b := range buckets {
		for _, s := range b {
			indexes = append(indexes, s.index)
		}
	}
	sort.Ints(indexes)

	out := make([]records.Record, 0, len(indexes)+len(passthrough))
	for _, idx := range indexes {
		out = append(out, in[idx])
	}
	for _, idx := range passthrough {
		out = append(out, in[idx])
	}
	return out
}

// ContentKey returns the columns that decide whether two rows of a table
// carry the same content: every column except pk and except columns named
// like a reference (suffix "_id"). When that leaves nothing, every column
// except pk is used.
func ContentKey(columns []string, pk string) []string {
	var key, nonPK []string
	for _, c := range columns {
		if c == pk {
			continue
		}
		nonPK = append(nonPK, c)
		if !strings.HasSuffix(c, "_id") {
			key = append(key, c)
		}
	}
	if len(key) == 0 {
		return nonPK
	}
	return key
}

// DedupContent removes rows of b that repeat an earlier row's content key,
// keeping the earliest. It returns the reduced batch and the number of rows
// removed. A batch whose only column is pk is returned unchanged.
func DedupContent(b records.Batch, pk string) (records.Batch, int) {
	key := ContentKey(b.Columns, pk)
	if len(key) == 0 {
		return b, 0
	}
	// Missing cells count as null, not as an unkeyable record.
	rows := make([]records.Record, len(b.Rows))
	for i, r := range b.Rows {
		rows[i] = withNulls(r, key)
	}
	kept := DeDup{Keys: key, Policy: "keep-first"}.Apply(rows)
	return records.Batch{Columns: b.Columns, Rows: kept}, len(b.Rows) - len(kept)
}

func withNulls(r records.Record, keys []string) records.Record {
	var out records.Record
	for _, k := range keys {
		if _, ok := r[k]; ok {
			continue
		}
		if out == nil {
			out = r.Clone()
		}
		out[k] = nil
	}
	if out == nil {
		return r
	}
	return out
}

// Type tags of the key encoding.
const (
	tagNull   = 0x00
	tagInt    = 'i'
	tagFloat  = 'f'
	tagString = 's'
	tagBool   = 'b'
	tagTime   = 't'
	tagOther  = 'v'
)

// appendKey encodes r's values for keys onto dst. It reports false when a
// key field is absent from r.
func appendKey(dst []byte, r records.Record, keys []string) ([]byte, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			return dst, false
		}
		dst = appendValue(dst, v)
	}
	return dst, true
}

func appendValue(dst []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(dst, tagNull)
	case string:
		return appendString(append(dst, tagString), x)
	case bool:
		if x {
			return append(dst, tagBool, 1)
		}
		return append(dst, tagBool, 0)
	case int:
		return appendInt(dst, int64(x))
	case int8:
		return appendInt(dst, int64(x))
	case int16:
		return appendInt(dst, int64(x))
	case int32:
		return appendInt(dst, int64(x))
	case int64:
		return appendInt(dst, x)
	case uint8:
		return appendInt(dst, int64(x))
	case uint16:
		return appendInt(dst, int64(x))
	case uint32:
		return appendInt(dst, int64(x))
	case uint64:
		if x <= math.MaxInt64 {
			return appendInt(dst, int64(x))
		}
		return appendFloat(dst, float64(x))
	case uint:
		return appendValue(dst, uint64(x))
	case float32:
		return appendFloat(dst, float64(x))
	case float64:
		return appendFloat(dst, x)
	case time.Time:
		return appendString(append(dst, tagTime), x.UTC().Format(time.RFC3339Nano))
	default:
		return appendString(append(dst, tagOther), fmt.Sprint(x))
	}
}

func appendInt(dst []byte, i int64) []byte {
	dst = append(dst, tagInt)
	return binary.BigEndian.AppendUint64(dst, uint64(i))
}

func appendFloat(dst []byte, f float64) []byte {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return appendInt(dst, int64(f))
	}
	dst = append(dst, tagFloat)
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(f))
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}
