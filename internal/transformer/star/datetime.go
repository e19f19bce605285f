package star

import (
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// maxUnixSeconds is 2100-01-01T00:00:00Z. Numbers in (0, maxUnixSeconds) are
// read as Unix seconds; anything else numeric is not a date.
const maxUnixSeconds = 4102444800

// dayFirstLayouts are tried in order for date strings. Ambiguous numeric
// dates are read day first; month-first layouts only match what day-first
// cannot, such as 12/25/2023.
var dayFirstLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2, 2006",
}

// ParseDate reads a transaction date. Numbers (and numeric strings) inside
// (0, 4102444800) are Unix seconds; other strings are parsed day first.
// Zoned values are converted to UTC and the result is always UTC. ok is false
// when v is not a usable date.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return fromUnix(f)
		}
		return parseString(s)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f)
	case bool:
		return time.Time{}, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return time.Time{}, false
	}
	return fromUnix(f)
}

func fromUnix(f float64) (time.Time, bool) {
	if math.IsNaN(f) || f <= 0 || f >= maxUnixSeconds {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
}

func parseString(s string) (time.Time, bool) {
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := cast.ToTimeInDefaultLocationE(s, time.UTC); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// DateID encodes the calendar day of t as YYYYMMDD.
func DateID(t time.Time) int64 {
	return int64(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
