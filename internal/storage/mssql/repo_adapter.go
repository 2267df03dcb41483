// This adapter wires the MSSQL backend into the storage-agnostic factory.
package mssql

import (
	"context"

	"behavioretl/internal/storage"
)

// newStore is a test hook that points to NewStore by default.
// Tests may replace this variable to avoid real DB connections.
var newStore = NewStore

var _ storage.Store = (*wrappedStore)(nil)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = BuildDSN(cfg.Connection)
		}
		s, closeFn, err := newStore(ctx, Config{DSN: dsn})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}

// wrappedStore ties the pool's close function to storage.Store.Close.
type wrappedStore struct {
	*Store
	closeFn func()
}

func (w *wrappedStore) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
