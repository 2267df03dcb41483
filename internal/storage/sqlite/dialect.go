package sqlite

import (
	"fmt"
	"strings"

	"behavioretl/internal/ddl"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// Dialect renders SQLite SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (d Dialect) QuoteTable(fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// ColumnType declares timestamps as TIMESTAMP so the driver parses them back
// into time.Time.
func (Dialect) ColumnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "INTEGER"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// IdentityType is INTEGER; as the primary key it aliases the rowid.
func (Dialect) IdentityType() string { return "INTEGER" }

func (Dialect) TempTableName(base string) string { return base }

func (d Dialect) CreateTemp(t ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(t, ddl.Options{
		Quote:  d.Quote,
		Table:  d.Quote(t.FQN),
		Prefix: "CREATE TEMP TABLE",
	})
}

func (d Dialect) CreateTable(t ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(t, ddl.Options{Quote: d.Quote, Table: d.QuoteTable(t.FQN)})
}

func (d Dialect) CreateTableAs(fqn, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", d.QuoteTable(fqn), query)
}

func (d Dialect) Rename(fqn, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteTable(fqn), d.Quote(to))
}

// Lock is a no-op; SQLite holds the database write lock from the first write
// until commit.
func (Dialect) Lock(string) (string, []any) { return "", nil }

func (Dialect) Placeholder(int) string { return "?" }

func init() {
	storage.RegisterDialect("sqlite", Dialect{})
}
