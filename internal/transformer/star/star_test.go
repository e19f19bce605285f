package star

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staretl/internal/etlerr"
	"staretl/internal/records"
)

func TestUsers_KeysAndDrops(t *testing.T) {
	t.Parallel()
	s := New(nil)
	got := s.Users([]records.Record{
		{"_id": "64f0", "id": int32(1), "firstName": "Emily", "address": map[string]any{"city": "Phoenix"}},
		{"id": 1.0, "firstName": "Duplicate"},
		{"firstName": "NoID"},
		{"id": "2", "firstName": "Michael"},
		{"id": 3.5, "firstName": "Fractional"},
	})

	require.Len(t, got.Rows, 2)
	assert.Equal(t, int64(1), got.Rows[0]["user_id"])
	assert.Equal(t, "Emily", got.Rows[0]["firstname"])
	assert.Equal(t, "Phoenix", got.Rows[0]["address_city"])
	assert.NotContains(t, got.Rows[0], "id")
	assert.NotContains(t, got.Rows[0], "_id")
	assert.Equal(t, int64(2), got.Rows[1]["user_id"])
	assert.True(t, got.HasColumn("user_id"))

	require.Len(t, s.Drops(), 1)
	assert.ErrorIs(t, s.Drops()[0], etlerr.ErrDataQuality)
	assert.Equal(t, 2, s.Dropped())
}

func TestProducts_BrandDefault(t *testing.T) {
	t.Parallel()
	got := New(nil).Products([]records.Record{
		{"id": 100, "brand": "Essence"},
		{"id": 101, "brand": "  "},
		{"id": 102},
		{"id": 103, "brand": nil},
	})
	var brands []any
	for _, r := range got.Rows {
		brands = append(brands, r["brand"])
	}
	assert.Equal(t, []any{"Essence", UnknownBrand, UnknownBrand, UnknownBrand}, brands)
}

func TestSales_FactAndItems(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	s := New(nil)
	sales, items := s.Sales([]records.Record{
		{
			"_id": "x", "id": 5000, "userId": 1, "total": 40.0, "discountedTotal": 36.0,
			"totalProducts": 1, "totalQuantity": 4, "transaction_date": ts.Unix(),
			"products": []any{
				map[string]any{"id": 100, "quantity": 2, "price": 10.0, "total": 20.0, "discountPercentage": 10.0, "discountedTotal": 18.0},
				map[string]any{"id": 100, "quantity": 2, "price": 12.0, "total": 20.0, "discountPercentage": 0.0, "discountedTotal": 18.0},
				map[string]any{"title": "no id"},
			},
		},
		{"id": 5000, "userId": 2, "transaction_date": ts.Unix()},
		{"id": 5001, "userId": 1, "transaction_date": "not a date", "products": []any{
			map[string]any{"id": 101, "quantity": 1},
		}},
		{"id": 5002, "transaction_date": ts.Unix()},
	})

	require.Len(t, sales.Rows, 1)
	sale := sales.Rows[0]
	assert.Equal(t, int64(5000), sale["sale_id"])
	assert.Equal(t, int64(1), sale["user_id"])
	assert.Equal(t, int64(20240309), sale["date_id"])
	assert.Equal(t, ts, sale["transaction_date"])
	assert.Equal(t, 36.0, sale["discountedtotal"])
	assert.NotContains(t, sale, "products")
	assert.NotContains(t, sale, "userid")

	require.Len(t, items.Rows, 2)
	it := items.Rows[0]
	assert.Equal(t, "5000_100", it["item_id"])
	assert.Equal(t, 4.0, it["quantity"])
	assert.Equal(t, 11.0, it["price"])
	assert.Equal(t, 40.0, it["total"])
	assert.Equal(t, 5.0, it["discountpercentage"])
	assert.Equal(t, 36.0, it["discountedtotal"])
	assert.Equal(t, "5001_101", items.Rows[1]["item_id"], "items of dropped sales are left to referential cleanup")
	assert.Nil(t, items.Rows[1]["price"])

	assert.Equal(t, 3, s.Dropped())
}

func TestDates_InclusiveRange(t *testing.T) {
	t.Parallel()
	sales := records.Batch{Rows: []records.Record{
		{"transaction_date": time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)},
		{"transaction_date": time.Date(2024, 3, 29, 1, 0, 0, 0, time.UTC)},
		{"transaction_date": nil},
	}}
	got := Dates(sales)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, dateColumns, got.Columns)

	fri := got.Rows[0]
	assert.Equal(t, int64(20240329), fri["date_id"])
	assert.Equal(t, "March", fri["month_name"])
	assert.Equal(t, "Friday", fri["day_of_week"])
	assert.Equal(t, int64(1), fri["quarter"])
	assert.Equal(t, false, fri["is_weekend"])
	assert.Equal(t, true, got.Rows[1]["is_weekend"])
	assert.Equal(t, int64(20240331), got.Rows[2]["date_id"])
}

func TestDates_Empty(t *testing.T) {
	t.Parallel()
	assert.True(t, Dates(records.Batch{}).Empty())
}

func TestDateRow_Quarters(t *testing.T) {
	t.Parallel()
	for m, q := range map[time.Month]int64{time.January: 1, time.April: 2, time.September: 3, time.December: 4} {
		assert.Equal(t, q, DateRow(time.Date(2023, m, 15, 0, 0, 0, 0, time.UTC))["quarter"], m.String())
	}
}
