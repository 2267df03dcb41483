// This adapter registers the "postgres" kind with the storage factory so
// callers obtain a Store through storage.New without importing this package.
package postgres

import (
	"context"

	"behavioretl/internal/storage"
)

// newStore is a test hook that points to NewStore by default.
var newStore = NewStore

// wrappedStore closes the pool through the function returned by NewStore.
type wrappedStore struct {
	*Store
	closeFn func()
}

var _ storage.Store = (*wrappedStore)(nil)

func (w *wrappedStore) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
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
