// Package staging writes validated records to a run-scoped temporary table.
package staging

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"behavioretl/internal/ddl"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
)

// OrdColumn carries the input order index used to break rank ties.
const OrdColumn = "ord"

// Table is a loaded staging table.
type Table struct {
	Name    string
	Columns []string
	Rows    int64
	Batches int64
}

// Name returns the staging table name for a run id: "stg_" plus the id with
// separators removed, decorated by the dialect for session scope.
func Name(d storage.Dialect, runID string) string {
	return d.TempTableName("stg_" + strings.ReplaceAll(strings.ToLower(runID), "-", ""))
}

// Def returns the staging table definition: every variant column plus ord,
// all NOT NULL.
func Def(d storage.Dialect, name string, v *schema.Variant) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, len(v.Fields)+1)
	for _, f := range v.Fields {
		cols = append(cols, ddl.ColumnDef{Name: f.Name, SQLType: d.ColumnType(f.Kind)})
	}
	cols = append(cols, ddl.ColumnDef{Name: OrdColumn, SQLType: d.ColumnType(schema.KindInt)})
	return ddl.TableDef{FQN: name, Columns: cols}
}

// Load creates the staging table inside tx and bulk-copies recs into it in
// batches of batchSize. Every row is checked against the table before
// anything is written; a mismatch is a staging write error.
func Load(
	ctx context.Context,
	log *zap.SugaredLogger,
	tx storage.Tx,
	d storage.Dialect,
	v *schema.Variant,
	runID string,
	recs []schema.Record,
	batchSize int,
) (Table, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	name := Name(d, runID)
	def := Def(d, name, v)
	t := Table{Name: name, Columns: def.Names()}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		if err := checkRow(v, rec); err != nil {
			return t, err
		}
		row := make([]any, 0, len(rec.Values)+1)
		row = append(row, rec.Values...)
		rows[i] = append(row, rec.Ord)
	}

	createSQL, err := d.CreateTemp(def)
	if err != nil {
		return t, etlerr.StagingWrite("render staging table %s: %v", name, err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return t, etlerr.Store(err, "create staging table %s", name)
	}

	start := time.Now()
	copyFn := func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
		return tx.CopyInto(ctx, name, columns, batch)
	}
	total, batches, err := storage.LoadBatches(ctx, log, t.Columns, rows, batchSize, copyFn)
	t.Rows, t.Batches = total, batches
	if err != nil {
		return t, etlerr.Store(err, "copy into staging table %s", name)
	}
	if total != int64(len(rows)) {
		return t, etlerr.StagingWrite("staging table %s received %d of %d rows", name, total, len(rows))
	}
	log.Infow("staged", "table", name, "rows", total, "batches", batches, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return t, nil
}

// Drop removes the staging table.
func Drop(ctx context.Context, tx storage.Tx, d storage.Dialect, t Table) error {
	if t.Name == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+d.QuoteTable(t.Name)); err != nil {
		return etlerr.Store(err, "drop staging table %s", t.Name)
	}
	return nil
}

// checkRow verifies arity, presence and the Go type of every value.
func checkRow(v *schema.Variant, rec schema.Record) error {
	if len(rec.Values) != len(v.Fields) {
		return etlerr.StagingWrite("line %d: %d values for %d columns", rec.Line, len(rec.Values), len(v.Fields))
	}
	for i, f := range v.Fields {
		val := rec.Values[i]
		ok := false
		switch f.Kind {
		case schema.KindInt:
			_, ok = val.(int64)
		case schema.KindString:
			_, ok = val.(string)
		case schema.KindTimestamp:
			_, ok = val.(time.Time)
		}
		if !ok {
			return etlerr.StagingWrite("line %d: column %s wants %s, got %T", rec.Line, f.Name, f.Kind, val)
		}
	}
	return nil
}
