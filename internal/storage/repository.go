// Package storage contains the store-agnostic contracts the pipeline runs
// against, a registry of backend factories, and small helpers shared by the
// backends (batched copy, value conversion, database/sql transactions).
//
// Backends live in subpackages and register themselves in init; import
// behavioretl/internal/storage/all to enable every built-in kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is an open connection to a relational store.
type Store interface {
	// Dialect returns the SQL dialect of the store.
	Dialect() Dialect
	// Begin starts a transaction. Every pipeline statement runs in one.
	Begin(ctx context.Context) (Tx, error)
	// Close releases the underlying pool.
	Close()
}

// Tx is a transaction on a Store. Statements use the dialect's placeholders.
type Tx interface {
	// Exec runs a statement and returns the affected row count when the
	// driver reports one.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Query runs a statement and returns all rows as positional values.
	Query(ctx context.Context, sql string, args ...any) ([][]any, error)
	// CopyInto bulk-inserts rows aligned to columns into table using the
	// backend's fastest primitive.
	CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection holds discrete connection parameters. Backends turn them into a
// DSN when Config.DSN is empty.
type Connection struct {
	Host       string
	Port       int
	Database   string
	User       string
	Credential string
}

// Config selects and configures a backend.
type Config struct {
	Kind       string
	DSN        string
	Connection Connection
}

// Factory opens a Store for a Config.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind. Backends call it from
// init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Store of cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
