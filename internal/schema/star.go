package schema

// Destination table names.
const (
	DimDate        = "dim_date"
	DimUsers       = "dim_users"
	DimProducts    = "dim_products"
	FactSales      = "fact_sales"
	FactSalesItems = "fact_sales_items"
)

func integer(name string) Column { return Column{Name: name, Type: TypeInteger} }

func text(name string) Column { return Column{Name: name, Type: TypeText} }

func numeric(name string, p, s int) Column {
	return Column{Name: name, Type: TypeNumeric, Precision: p, Scale: s}
}

func timestamp(name string) Column { return Column{Name: name, Type: TypeTimestamp} }

func notNull(c Column) Column {
	c.NotNull = true
	return c
}

func texts(names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = text(n)
	}
	return out
}

func concat(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var dimDate = Table{
	Name:       DimDate,
	PrimaryKey: "date_id",
	Columns: []Column{
		integer("date_id"),
		{Name: "full_date", Type: TypeDate},
		integer("day"),
		integer("month"),
		text("month_name"),
		integer("year"),
		integer("quarter"),
		text("day_of_week"),
		{Name: "is_weekend", Type: TypeBoolean},
	},
}

var dimUsers = Table{
	Name:       DimUsers,
	PrimaryKey: "user_id",
	Columns: concat(
		[]Column{integer("user_id")},
		texts("firstname", "lastname", "maidenname"),
		[]Column{integer("age")},
		texts("gender", "email", "phone", "username", "password", "birthdate", "image", "bloodgroup"),
		[]Column{numeric("height", 5, 2), numeric("weight", 5, 2)},
		texts(
			"eyecolor", "hair_color", "hair_type", "ip", "macaddress", "university",
			"useragent", "role", "cpf", "cnpj",
			"address_address", "address_city", "address_state", "address_statecode",
			"address_postalcode", "address_country",
		),
		[]Column{numeric("address_coordinates_lat", 10, 6), numeric("address_coordinates_lng", 10, 6)},
		texts(
			"bank_cardexpire", "bank_cardnumber", "bank_cardtype", "bank_currency", "bank_iban",
			"company_department", "company_name", "company_title",
			"company_address_address", "company_address_city", "company_address_state",
			"company_address_statecode", "company_address_postalcode", "company_address_country",
		),
		[]Column{numeric("company_address_coordinates_lat", 10, 6), numeric("company_address_coordinates_lng", 10, 6)},
		texts("crypto_coin", "crypto_wallet", "crypto_network"),
	),
}

var dimProducts = Table{
	Name:       DimProducts,
	PrimaryKey: "product_id",
	Columns: concat(
		[]Column{integer("product_id")},
		texts("title", "description", "category"),
		[]Column{
			numeric("price", 10, 2),
			numeric("discountpercentage", 5, 2),
			numeric("rating", 3, 2),
			integer("stock"),
		},
		texts("tags", "brand", "sku"),
		[]Column{integer("weight")},
		texts("warrantyinformation", "shippinginformation", "availabilitystatus", "reviews", "returnpolicy"),
		[]Column{integer("minimumorderquantity")},
		texts("images", "thumbnail"),
		[]Column{
			numeric("dimensions_width", 10, 2),
			numeric("dimensions_height", 10, 2),
			numeric("dimensions_depth", 10, 2),
			timestamp("meta_createdat"),
			timestamp("meta_updatedat"),
		},
		texts("meta_barcode", "meta_qrcode"),
	),
}

var factSales = Table{
	Name:       FactSales,
	PrimaryKey: "sale_id",
	Columns: []Column{
		integer("sale_id"),
		notNull(integer("user_id")),
		notNull(integer("date_id")),
		numeric("total", 15, 2),
		numeric("discountedtotal", 15, 2),
		integer("totalproducts"),
		integer("totalquantity"),
		timestamp("transaction_date"),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_sales_user", Column: "user_id", RefTable: DimUsers, RefColumn: "user_id"},
		{Name: "fk_sales_date", Column: "date_id", RefTable: DimDate, RefColumn: "date_id"},
	},
}

var factSalesItems = Table{
	Name:       FactSalesItems,
	PrimaryKey: "item_id",
	Columns: []Column{
		{Name: "item_id", Type: TypeText, Size: 64},
		notNull(integer("sale_id")),
		notNull(integer("product_id")),
		integer("user_id"),
		integer("quantity"),
		numeric("price", 10, 2),
		numeric("total", 15, 2),
		numeric("discountpercentage", 5, 2),
		numeric("discountedtotal", 15, 2),
	},
	ForeignKeys: []ForeignKey{
		{Name: "fk_items_sales", Column: "sale_id", RefTable: FactSales, RefColumn: "sale_id"},
		{Name: "fk_items_product", Column: "product_id", RefTable: DimProducts, RefColumn: "product_id"},
	},
}

var starIndexes = []Index{
	{Name: "idx_sales_date_id", Table: FactSales, Column: "date_id"},
	{Name: "idx_sales_user", Table: FactSales, Column: "user_id"},
	{Name: "idx_items_product", Table: FactSalesItems, Column: "product_id"},
}

// StarSchema returns the registry of the five star-schema tables.
func StarSchema() *Registry {
	r, err := NewRegistry(
		[]Table{dimDate, dimUsers, dimProducts, factSales, factSalesItems},
		starIndexes,
	)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadOrder is the order tables must be loaded in so that every referenced
// row exists before the rows that reference it.
var LoadOrder = []string{DimDate, DimUsers, DimProducts, FactSales, FactSalesItems}
