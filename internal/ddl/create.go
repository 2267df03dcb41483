// Package ddl defines a small, backend-agnostic model for table DDL and a
// renderer for CREATE TABLE statements.
//
// Identifier quoting is supplied by the caller, so each storage dialect reuses
// the same renderer with its own quoting rules. ColumnDef.Default is emitted as
// raw SQL.
package ddl

import (
	"fmt"
	"strings"
)

// Quoter quotes a single identifier.
type Quoter func(ident string) string

// Options tunes the rendered statement.
type Options struct {
	// Quote quotes column names. Nil emits names verbatim.
	Quote Quoter
	// Table is the already-quoted table name. Empty uses TableDef.FQN as is.
	Table string
	// Prefix replaces "CREATE TABLE", e.g. "CREATE TEMPORARY TABLE".
	Prefix string
	// Suffix is appended after the closing parenthesis, e.g. "ON COMMIT DROP".
	Suffix string
}

// BuildCreateTableSQL renders a CREATE TABLE statement from t:
//
//	<Prefix> <Table> (
//	  <col> <SQLType> [NOT NULL] [DEFAULT <Default>],
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	) [<Suffix>]
//
// Primary-key columns are always NOT NULL.
func BuildCreateTableSQL(t TableDef, opt Options) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	quote := opt.Quote
	if quote == nil {
		quote = func(s string) string { return s }
	}
	table := opt.Table
	if table == "" {
		table = fqn
	}
	prefix := opt.Prefix
	if prefix == "" {
		prefix = "CREATE TABLE"
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	stmt := fmt.Sprintf("%s %s (\n  %s\n)", prefix, table, strings.Join(cols, ",\n  "))
	if s := strings.TrimSpace(opt.Suffix); s != "" {
		stmt += " " + s
	}
	return stmt, nil
}
