package storage

import (
	"fmt"
	"strings"
	"sync"

	"behavioretl/internal/ddl"
	"behavioretl/internal/schema"
)

// Dialect renders the backend-specific pieces of the statements the pipeline
// issues. Everything else is plain SQL shared by all backends.
type Dialect interface {
	Name() string
	// Quote quotes a single identifier.
	Quote(ident string) string
	// QuoteTable quotes a possibly schema-qualified name.
	QuoteTable(fqn string) string
	// ColumnType maps a canonical kind to a column type.
	ColumnType(k schema.Kind) string
	// IdentityType is the column type of the surrogate id.
	IdentityType() string
	// TempTableName returns the name used for a transaction-scoped table.
	TempTableName(base string) string
	// CreateTemp renders CREATE for a table visible only to this session.
	CreateTemp(t ddl.TableDef) (string, error)
	// CreateTable renders a plain CREATE TABLE.
	CreateTable(t ddl.TableDef) (string, error)
	// CreateTableAs renders a table built from a SELECT.
	CreateTableAs(fqn, query string) string
	// Rename renames fqn to the bare table name to, keeping its schema.
	Rename(fqn, to string) string
	// Lock returns a statement that takes the destination write lock for the
	// rest of the transaction, or "" when the store serializes writers itself.
	Lock(fqn string) (string, []any)
	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder(n int) string
}

var (
	dialectMu sync.RWMutex
	dialects  = map[string]Dialect{}
)

// RegisterDialect makes d available by kind without opening a connection.
func RegisterDialect(kind string, d Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[kind] = d
}

// DialectFor returns the dialect registered for kind.
func DialectFor(kind string) (Dialect, error) {
	dialectMu.RLock()
	d, ok := dialects[kind]
	dialectMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no dialect registered for kind %q", kind)
	}
	return d, nil
}

// IDColumn is the surrogate key every destination table carries.
const IDColumn = "id"

// DestinationDef returns the destination table definition for v: the
// surrogate id followed by the variant columns. Columns are nullable so the
// post-publish null check is what enforces completeness.
func DestinationDef(d Dialect, fqn string, v *schema.Variant) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, len(v.Fields)+1)
	cols = append(cols, ddl.ColumnDef{Name: IDColumn, SQLType: d.IdentityType(), PrimaryKey: true})
	for _, f := range v.Fields {
		cols = append(cols, ddl.ColumnDef{Name: f.Name, SQLType: d.ColumnType(f.Kind), Nullable: true})
	}
	return ddl.TableDef{FQN: fqn, Columns: cols}
}

// SplitFQN splits "schema.table" into its parts. A bare name has an empty
// schema.
func SplitFQN(fqn string) (schemaName, table string) {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// Sibling returns a table name in the same schema as fqn with suffix
// appended to the bare name.
func Sibling(fqn, suffix string) string {
	s, t := SplitFQN(fqn)
	if s == "" {
		return t + suffix
	}
	return s + "." + t + suffix
}

// QuoteAll quotes each identifier with d.
func QuoteAll(d Dialect, idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return out
}

// ShadowSuffix returns the suffix of the tables a run builds before swapping
// them in: "__next_" and the first twelve hex digits of the run id.
func ShadowSuffix(runID string) string {
	s := strings.ToLower(strings.ReplaceAll(runID, "-", ""))
	if len(s) > 12 {
		s = s[:12]
	}
	return "__next_" + s
}
