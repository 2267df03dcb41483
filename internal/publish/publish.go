// Package publish replaces a destination table with the deduplicated contents
// of a staging table. Everything happens inside the caller's transaction, so
// readers see either the previous table or the new one.
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"behavioretl/internal/dedup"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// Request describes one publish.
type Request struct {
	// Dest is the destination table, optionally schema-qualified.
	Dest    string
	Variant *schema.Variant
	// Staging is the loaded staging table name.
	Staging string
	Order   dedup.Order
	// Expected is the row count the publish must produce.
	Expected int64
	// RunID names the shadow table.
	RunID string
}

// Result reports what was published.
type Result struct {
	Table  string
	Shadow string
	Rows   int64
}

// ShadowName returns the table a run builds before swapping it in.
func ShadowName(dest, runID string) string {
	return storage.Sibling(dest, storage.ShadowSuffix(runID))
}

// Publish locks the destination, fills a shadow table from the ranked
// staging rows, verifies it and swaps it in place of the destination.
// A verification failure is a publish error; store failures are store
// errors. The caller rolls back on any error.
func Publish(ctx context.Context, log *zap.SugaredLogger, tx storage.Tx, d storage.Dialect, req Request) (Result, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	start := time.Now()
	v := req.Variant
	shadow := ShadowName(req.Dest, req.RunID)
	res := Result{Table: req.Dest, Shadow: shadow}

	if stmt, args := d.Lock(req.Dest); stmt != "" {
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return res, etlerr.Store(err, "lock %s", req.Dest)
		}
	}

	create, err := d.CreateTable(storage.DestinationDef(d, shadow, v))
	if err != nil {
		return res, etlerr.Publish("render shadow table %s: %v", shadow, err)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+d.QuoteTable(shadow)); err != nil {
		return res, etlerr.Store(err, "drop stale shadow %s", shadow)
	}
	if _, err := tx.Exec(ctx, create); err != nil {
		return res, etlerr.Store(err, "create shadow %s", shadow)
	}

	cols := strings.Join(storage.QuoteAll(d, v.Columns()), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) %s",
		d.QuoteTable(shadow), cols, dedup.RankedSelect(d, v, req.Staging, req.Order))
	if _, err := tx.Exec(ctx, insert); err != nil {
		return res, etlerr.Store(err, "fill shadow %s", shadow)
	}

	n, err := count(ctx, tx, fmt.Sprintf("SELECT COUNT(*) FROM %s", d.QuoteTable(shadow)))
	if err != nil {
		return res, etlerr.Store(err, "count %s", shadow)
	}
	if n != req.Expected {
		return res, etlerr.WithHintf(
			etlerr.Publish("published %d rows into %s, expected %d", n, req.Dest, req.Expected),
			"the store ranked the staging rows differently from the resolver")
	}

	required := append(v.KeyColumns(), v.RankColumn())
	conds := make([]string, len(required))
	for i, c := range required {
		conds[i] = d.Quote(c) + " IS NULL"
	}
	nulls, err := count(ctx, tx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s",
		d.QuoteTable(shadow), strings.Join(conds, " OR ")))
	if err != nil {
		return res, etlerr.Store(err, "null check %s", shadow)
	}
	if nulls > 0 {
		return res, etlerr.Publish("%d published rows in %s have NULL in [%s]",
			nulls, req.Dest, strings.Join(required, ", "))
	}

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+d.QuoteTable(req.Dest)); err != nil {
		return res, etlerr.Store(err, "drop %s", req.Dest)
	}
	_, bare := storage.SplitFQN(req.Dest)
	if _, err := tx.Exec(ctx, d.Rename(shadow, bare)); err != nil {
		return res, etlerr.Store(err, "rename %s to %s", shadow, bare)
	}

	res.Rows = n
	log.Infow("published", "table", req.Dest, "rows", n, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

func count(ctx context.Context, tx storage.Tx, query string) (int64, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		return 0, fmt.Errorf("count returned %d rows", len(rows))
	}
	return storage.AsInt64(rows[0][0])
}
