package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLTx adapts a database/sql transaction to Tx. Copy supplies the bulk path,
// which differs per driver.
type SQLTx struct {
	Tx   *sql.Tx
	Copy func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)
}

var _ Tx = (*SQLTx)(nil)

func (t *SQLTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.Tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (t *SQLTx) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := t.Tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return ScanRows(rows)
}

func (t *SQLTx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if t.Copy == nil {
		return 0, fmt.Errorf("storage: no bulk copy for this driver")
	}
	return t.Copy(ctx, t.Tx, table, columns, rows)
}

func (t *SQLTx) Commit(context.Context) error   { return t.Tx.Commit() }
func (t *SQLTx) Rollback(context.Context) error { return t.Tx.Rollback() }

// ScanRows drains rows into positional values and closes it.
func ScanRows(rows *sql.Rows) ([][]any, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// AsInt64 converts a scanned numeric value.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case nil:
		return 0, fmt.Errorf("storage: NULL where a number was expected")
	default:
		return 0, fmt.Errorf("storage: cannot read %T as integer", v)
	}
}

// AsString converts a scanned text value; NULL becomes "".
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

// storedTimeLayouts are the text forms drivers without a native timestamp
// type hand back.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// AsTime converts a scanned timestamp, accepting text forms.
func AsTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string, []byte:
		s := AsString(t)
		for _, layout := range storedTimeLayouts {
			if tt, err := time.Parse(layout, s); err == nil {
				return tt.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("storage: unrecognized timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("storage: cannot read %T as timestamp", v)
	}
}
