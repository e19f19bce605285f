package star

import (
	"strings"

	"staretl/internal/records"
	"staretl/internal/schema"
)

// Users shapes user documents into dim_users rows keyed by user_id.
func (s *Shaper) Users(docs []records.Record) records.Batch {
	return s.dimension(schema.DimUsers, "user_id", docs, nil)
}

// Products shapes product documents into dim_products rows keyed by
// product_id. A missing or blank brand becomes UnknownBrand.
func (s *Shaper) Products(docs []records.Record) records.Batch {
	return s.dimension(schema.DimProducts, "product_id", docs, func(r records.Record) {
		switch b := r["brand"].(type) {
		case nil:
			r["brand"] = UnknownBrand
		case string:
			if strings.TrimSpace(b) == "" {
				r["brand"] = UnknownBrand
			}
		}
	})
}
