// Package sqlite implements storage.Store on modernc.org/sqlite through
// database/sql. SQLite has no bulk-load API; CopyInto runs a prepared INSERT
// per row inside the caller's transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"behavioretl/internal/storage"
)

// Store is a SQLite-backed storage.Store.
type Store struct {
	db *sql.DB
}

// Open opens dsn with the pool pinned to one connection, so ":memory:" is a
// single database and a transaction owns the only connection.
func Open(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// NewStore opens and pings the database.
func NewStore(ctx context.Context, cfg Config) (*Store, func(), error) {
	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db}, func() { db.Close() }, nil
}

// NewFromDB wraps an existing handle. The caller keeps ownership of db.
func NewFromDB(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle, mainly for tests and the ddl command.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() storage.Dialect { return Dialect{} }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	return &storage.SQLTx{Tx: tx, Copy: copyRows}, nil
}

func (s *Store) Close() {}

// copyRows inserts rows with one prepared statement.
func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: copy: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	d := Dialect{}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteTable(table),
		strings.Join(storage.QuoteAll(d, columns), ", "),
		placeholders,
	)

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if len(row) != len(columns) {
			return inserted, fmt.Errorf("sqlite: copy: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		inserted++
	}
	return inserted, nil
}
