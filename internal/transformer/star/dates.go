package star

import (
	"time"

	"staretl/internal/records"
)

var dateColumns = []string{
	"date_id", "full_date", "day", "month", "month_name",
	"year", "quarter", "day_of_week", "is_weekend",
}

// Dates builds the date dimension: one row per calendar day from the earliest
// to the latest transaction_date in sales, both inclusive. Sales without a
// date are ignored; no dated sale yields an empty batch.
func Dates(sales records.Batch) records.Batch {
	var lo, hi time.Time
	for _, r := range sales.Rows {
		t, ok := r[cartDate].(time.Time)
		if !ok {
			continue
		}
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	}
	out := records.Batch{Columns: dateColumns}
	if lo.IsZero() {
		return out
	}
	for d := Day(lo); !d.After(Day(hi)); d = d.AddDate(0, 0, 1) {
		out.Rows = append(out.Rows, DateRow(d))
	}
	return out
}

// DateRow describes the calendar day of t.
func DateRow(t time.Time) records.Record {
	d := Day(t)
	wd := d.Weekday()
	return records.Record{
		"date_id":     DateID(d),
		"full_date":   d,
		"day":         int64(d.Day()),
		"month":       int64(d.Month()),
		"month_name":  d.Month().String(),
		"year":        int64(d.Year()),
		"quarter":     int64((int(d.Month())-1)/3 + 1),
		"day_of_week": wd.String(),
		"is_weekend":  wd == time.Saturday || wd == time.Sunday,
	}
}
