// This adapter registers the "sqlite" kind with the storage factory.
package sqlite

import (
	"context"

	"behavioretl/internal/storage"
)

// newStore is a test hook that points to NewStore by default.
var newStore = NewStore

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
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = BuildDSN(cfg.Connection.Database)
		}
		s, closeFn, err := newStore(ctx, Config{DSN: dsn})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}
