package postgres

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"behavioretl/internal/ddl"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// Dialect renders Postgres SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

// Quote double-quotes an identifier, escaping embedded quotes.
func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// QuoteTable quotes "public.usb1" as "public"."usb1".
func (d Dialect) QuoteTable(fqn string) string {
	parts := strings.Split(fqn, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

func (Dialect) ColumnType(k schema.Kind) string {
	switch k {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (Dialect) IdentityType() string { return "SERIAL" }

func (Dialect) TempTableName(base string) string { return base }

// CreateTemp creates a session-local table dropped at commit or rollback.
func (d Dialect) CreateTemp(t ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(t, ddl.Options{
		Quote:  d.Quote,
		Table:  d.Quote(t.FQN),
		Prefix: "CREATE TEMPORARY TABLE",
		Suffix: "ON COMMIT DROP",
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

// Lock takes a transaction-scoped advisory lock keyed by the table name.
func (Dialect) Lock(fqn string) (string, []any) {
	return "SELECT pg_advisory_xact_lock($1)", []any{LockKey(fqn)}
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// LockKey hashes a table name into the advisory lock key space.
func LockKey(fqn string) int64 {
	return int64(xxh3.HashString(strings.ToLower(fqn)))
}

func init() {
	storage.RegisterDialect("postgres", Dialect{})
}
