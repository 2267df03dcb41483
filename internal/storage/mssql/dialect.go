package mssql

import (
	"fmt"
	"strings"

	"behavioretl/internal/ddl"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// Dialect renders T-SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "mssql" }

// Quote quotes an identifier using [brackets], escaping ].
func (Dialect) Quote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// QuoteTable quotes "dbo.events" as "[dbo].[events]".
func (d Dialect) QuoteTable(fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// StringCollation compares strings by code point, so keys that differ only in
// case or accents stay distinct when ranked and counted.
const StringCollation = "Latin1_General_100_BIN2"

// ColumnType maps kinds to T-SQL types. Strings are unbounded and carry
// StringCollation regardless of the database default.
func (Dialect) ColumnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX) COLLATE " + StringCollation
	}
}

func (Dialect) IdentityType() string { return "INT IDENTITY(1,1)" }

// TempTableName prefixes base with '#', making the table session-local.
func (Dialect) TempTableName(base string) string { return "#" + base }

func (d Dialect) CreateTemp(t ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(t, ddl.Options{Quote: d.Quote, Table: d.Quote(t.FQN)})
}

func (d Dialect) CreateTable(t ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(t, ddl.Options{Quote: d.Quote, Table: d.QuoteTable(t.FQN)})
}

// CreateTableAs uses SELECT INTO; query must name every output column.
func (d Dialect) CreateTableAs(fqn, query string) string {
	return fmt.Sprintf("SELECT * INTO %s FROM (%s) AS src", d.QuoteTable(fqn), query)
}

// Rename uses sp_rename, whose second argument is the bare new name.
func (d Dialect) Rename(fqn, to string) string {
	from := strings.ReplaceAll(d.QuoteTable(fqn), "'", "''")
	return fmt.Sprintf("EXEC sp_rename N'%s', N'%s'", from, strings.ReplaceAll(to, "'", "''"))
}

// Lock takes an exclusive application lock named after the destination,
// released when the transaction ends.
func (Dialect) Lock(fqn string) (string, []any) {
	return "EXEC sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', @LockOwner = 'Transaction'",
		[]any{"behavioretl:" + strings.ToLower(fqn)}
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func init() {
	storage.RegisterDialect("mssql", Dialect{})
}
