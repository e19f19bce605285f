package star

import (
	"fmt"

	"github.com/spf13/cast"

	"staretl/internal/records"
	"staretl/internal/schema"
	"staretl/internal/transformer/builtin"
)

// Cart fields read while shaping sales.
const (
	cartProducts = "products"
	cartUser     = "userid" // userId after name folding
	cartDate     = "transaction_date"
)

// Sales shapes cart documents into fact_sales and fact_sales_items rows.
//
// Carts are deduplicated by id, first one wins. A sale needs an id, a user
// and a parseable transaction date; its date_id is the YYYYMMDD of that date.
// Items are the carts' product lines grouped by (sale, product, user):
// quantity, total and discountedtotal are summed while price and
// discountpercentage are averaged. Items are keyed by "<sale_id>_<product_id>".
//
// Items are built from every deduplicated cart, including carts whose sale
// row was dropped; the referential cleanup that follows removes them.
func (s *Shaper) Sales(carts []records.Record) (sales, items records.Batch) {
	var (
		kept []cart
		seen = make(map[int64]struct{}, len(carts))
		noID int
	)
	for _, c := range carts {
		id, ok := intID(c[sourceID])
		if !ok {
			noID++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, s.cart(id, c))
	}

	saleRows := make([]records.Record, 0, len(kept))
	noUser, badDate := 0, 0
	for _, c := range kept {
		if !c.hasUser {
			noUser++
			continue
		}
		ts, ok := ParseDate(c.header[cartDate])
		if !ok {
			badDate++
			continue
		}
		r := c.header.Clone()
		delete(r, sourceID)
		delete(r, cartUser)
		r["sale_id"] = c.id
		r["user_id"] = c.user
		r[cartDate] = ts
		r["date_id"] = DateID(ts)
		saleRows = append(saleRows, r)
	}
	s.drop(schema.FactSales, "missing or invalid sale id", noID)
	s.drop(schema.FactSales, "missing or invalid user id", noUser)
	s.drop(schema.FactSales, "invalid transaction date", badDate)

	return records.NewBatch(saleRows), s.items(kept)
}

// itemColumns is the header of the shaped sales-item batch.
var itemColumns = []string{
	"item_id", "sale_id", "product_id", "user_id",
	"quantity", "price", "total", "discountpercentage", "discountedtotal",
}

// cart is a deduplicated cart: its flattened header fields and its raw
// product lines.
type cart struct {
	id      int64
	user    int64
	hasUser bool
	header  records.Record
	lines   []any
}

func (s *Shaper) cart(id int64, doc records.Record) cart {
	head := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != cartProducts {
			head[k] = v
		}
	}
	c := cart{id: id, header: s.flatten.Record(head)}
	builtin.Normalize{}.Apply([]records.Record{c.header})
	c.lines, _ = doc[cartProducts].([]any)
	c.user, c.hasUser = intID(c.header[cartUser])
	return c
}

type itemKey struct {
	sale, product, user int64
}

// measure accumulates one numeric field over the lines of a group. Missing
// and non-numeric values are skipped.
type measure struct {
	sum float64
	n   int
}

func (m *measure) add(v any) {
	if v == nil {
		return
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return
	}
	m.sum += f
	m.n++
}

func (m measure) mean() any {
	if m.n == 0 {
		return nil
	}
	return m.sum / float64(m.n)
}

type itemGroup struct {
	quantity, price, total, discount, discounted measure
}

func (s *Shaper) items(carts []cart) records.Batch {
	groups := make(map[itemKey]*itemGroup)
	var order []itemKey
	dropped := 0
	for _, c := range carts {
		for _, l := range c.lines {
			line, ok := asDoc(l)
			if !ok {
				dropped++
				continue
			}
			fl := s.flatten.Record(line)
			product, ok := intID(fl[sourceID])
			if !ok || !c.hasUser {
				dropped++
				continue
			}
			k := itemKey{sale: c.id, product: product, user: c.user}
			g, ok := groups[k]
			if !ok {
				g = &itemGroup{}
				groups[k] = g
				order = append(order, k)
			}
			g.quantity.add(fl["quantity"])
			g.price.add(fl["price"])
			g.total.add(fl["total"])
			g.discount.add(fl["discountpercentage"])
			g.discounted.add(fl["discountedtotal"])
		}
	}
	s.drop(schema.FactSalesItems, "missing product or user id", dropped)

	rows := make([]records.Record, 0, len(order))
	for _, k := range order {
		g := groups[k]
		rows = append(rows, records.Record{
			"item_id":            fmt.Sprintf("%d_%d", k.sale, k.product),
			"sale_id":            k.sale,
			"product_id":         k.product,
			"user_id":            k.user,
			"quantity":           g.quantity.sum,
			"price":              g.price.mean(),
			"total":              g.total.sum,
			"discountpercentage": g.discount.mean(),
			"discountedtotal":    g.discounted.sum,
		})
	}
	return records.Batch{Columns: itemColumns, Rows: rows}
}

func asDoc(v any) (map[string]any, bool) {
	switch d := v.(type) {
	case map[string]any:
		return d, true
	case records.Record:
		return d, true
	}
	return nil, false
}
