package ddl

// ColumnDef describes a single column.
//
//   - Name: logical column name, unquoted
//   - SQLType: dialect type (e.g. BIGINT, TEXT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: member of the primary key
//   - Default: raw default expression
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds a table name in dotted form ("schema.table") and its
// ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Names returns the column names in order.
func (t TableDef) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
