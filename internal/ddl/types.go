package ddl

// ColumnDef describes a single column in a table definition. Name is emitted
// as given; quoting happens before the definition reaches the renderer.
//
// Fields:
//   - Name: column name, already quoted for the target dialect
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, NUMERIC(10,2))
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// ForeignKeyDef is a named single-column foreign key constraint.
type ForeignKeyDef struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
}

// TableDef holds the table name (FQN), its ordered columns and foreign keys.
// IfNotExists adds the IF NOT EXISTS guard for dialects that support it.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	ForeignKeys []ForeignKeyDef
	IfNotExists bool
}
