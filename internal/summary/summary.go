// Package summary rebuilds distinct-user aggregate tables from a published
// destination table.
package summary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// UsersColumn holds the distinct user count of each dimension value.
const UsersColumn = "user_count"

// Spec names one aggregate: the table to rebuild and the field it groups by.
type Spec struct {
	Table     string
	Dimension string
}

// Row is one dimension value and its distinct users.
type Row struct {
	Value string `json:"value"`
	Users int64  `json:"users"`
}

// Table is a rebuilt aggregate as read back after the swap.
type Table struct {
	Name      string `json:"name"`
	Dimension string `json:"dimension"`
	Rows      []Row  `json:"rows"`
}

// Build rebuilds each spec from dest, one transaction per table. A failed
// table is returned as an aggregation warning and never stops the others.
func Build(
	ctx context.Context,
	log *zap.SugaredLogger,
	store storage.Store,
	v *schema.Variant,
	dest string,
	specs []Spec,
	runID string,
) ([]Table, []error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var (
		tables   []Table
		warnings []error
	)
	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, etlerr.Aggregation(err, "summary %s", s.Table))
			continue
		}
		start := time.Now()
		t, err := rebuild(ctx, store, v, dest, s, runID)
		if err != nil {
			log.Warnw("summary failed", "table", s.Table, "dimension", s.Dimension, "err", err)
			warnings = append(warnings, etlerr.Aggregation(err, "summary %s", s.Table))
			continue
		}
		log.Infow("summary", "table", t.Name, "dimension", t.Dimension, "groups", len(t.Rows),
			"elapsed", time.Since(start).Truncate(time.Millisecond))
		tables = append(tables, t)
	}
	return tables, warnings
}

func rebuild(ctx context.Context, store storage.Store, v *schema.Variant, dest string, s Spec, runID string) (_ Table, err error) {
	if v.Index(s.Dimension) < 0 {
		return Table{}, fmt.Errorf("dimension %q is not a column of %s", s.Dimension, dest)
	}
	d := store.Dialect()

	tx, err := store.Begin(ctx)
	if err != nil {
		return Table{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if stmt, args := d.Lock(s.Table); stmt != "" {
		if _, err = tx.Exec(ctx, stmt, args...); err != nil {
			return Table{}, fmt.Errorf("lock: %w", err)
		}
	}

	next := storage.Sibling(s.Table, storage.ShadowSuffix(runID))
	dim := d.Quote(s.Dimension)
	query := fmt.Sprintf("SELECT %s, COUNT(DISTINCT %s) AS %s FROM %s GROUP BY %s",
		dim, d.Quote("user_id"), d.Quote(UsersColumn), d.QuoteTable(dest), dim)

	steps := []string{
		"DROP TABLE IF EXISTS " + d.QuoteTable(next),
		d.CreateTableAs(next, query),
		"DROP TABLE IF EXISTS " + d.QuoteTable(s.Table),
	}
	for _, stmt := range steps {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return Table{}, err
		}
	}
	_, bare := storage.SplitFQN(s.Table)
	if _, err = tx.Exec(ctx, d.Rename(next, bare)); err != nil {
		return Table{}, err
	}

	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		dim, d.Quote(UsersColumn), d.QuoteTable(s.Table), dim))
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: s.Table, Dimension: s.Dimension, Rows: make([]Row, 0, len(rows))}
	for _, r := range rows {
		n, err := storage.AsInt64(r[1])
		if err != nil {
			return Table{}, err
		}
		t.Rows = append(t.Rows, Row{Value: storage.AsString(r[0]), Users: n})
	}
	if err = tx.Commit(ctx); err != nil {
		return Table{}, err
	}
	return t, nil
}
