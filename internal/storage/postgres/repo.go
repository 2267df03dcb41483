// Package postgres implements storage.Store on pgx v5. Bulk loads use COPY
// inside the caller's transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"behavioretl/internal/storage"
)

// Config holds Postgres connection configuration.
type Config struct {
	DSN string
}

// Store is a pgxpool-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects and pings, returning the store and a close function.
func NewStore(ctx context.Context, cfg Config) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, pool.Close, nil
}

func (s *Store) Dialect() storage.Dialect { return Dialect{} }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) Close() {}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ storage.Tx = (*Tx)(nil)

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, describe(err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) ([][]any, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, describe(err)
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, describe(err)
		}
		out = append(out, vals)
	}
	return out, describe(rows.Err())
}

// CopyInto streams rows with COPY FROM STDIN.
func (t *Tx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier(strings.Split(table, ".")), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, describe(err))
	}
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error   { return describe(t.tx.Commit(ctx)) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// describe surfaces the server's detail and SQLSTATE when present.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s; sqlstate %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

// BuildDSN renders connection parameters as a postgres:// URL.
func BuildDSN(c storage.Connection) string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	switch {
	case c.User != "" && c.Credential != "":
		u.User = url.UserPassword(c.User, c.Credential)
	case c.User != "":
		u.User = url.User(c.User)
	}
	return u.String()
}
