package storage

// A batched loader that slices rows into fixed-size batches and hands each
// one to a backend copy function, logging progress per flush.

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CopyFn inserts rows aligned to columns and returns the count inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches copies rows in batches of batchSize and returns the total
// reported by copyFn. It stops at the first error or on cancellation.
func LoadBatches(
	ctx context.Context,
	log *zap.SugaredLogger,
	columns []string,
	rows [][]any,
	batchSize int,
	copyFn CopyFn,
) (int64, int64, error) {
	if batchSize <= 0 {
		return 0, 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var (
		total   int64
		batches int64
		start   = time.Now()
		last    = start
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return total, batches, err
		}
		hi := min(lo+batchSize, len(rows))

		n, err := copyFn(ctx, columns, rows[lo:hi])
		total += n
		if err != nil {
			log.Warnf("loader: copy failed batch=%d after=%d total=%d err=%v", batches+1, n, total, err)
			return total, batches, err
		}
		batches++

		now := time.Now()
		since := now.Sub(last)
		rps := float64(0)
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		log.Debugf("batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
			batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
		last = now
	}
	return total, batches, nil
}
