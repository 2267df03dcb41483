package staging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
	"behavioretl/internal/storage/sqlite"
)

const runID = "0b9d3c1e-5f44-4c57-9d7e-6c1f2a3b4c5d"

func open(t *testing.T) (storage.Store, storage.Tx) {
	t.Helper()
	st, closeFn, err := sqlite.NewStore(context.Background(), sqlite.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(closeFn)
	tx, err := st.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return st, tx
}

func basic(t *testing.T) *schema.Variant {
	t.Helper()
	v, err := schema.Lookup("basic")
	require.NoError(t, err)
	return v
}

func at(h int) time.Time { return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC) }

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stg_0b9d3c1e5f444c579d7e6c1f2a3b4c5d", Name(sqlite.Dialect{}, runID))
}

func TestLoadCopiesInBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, tx := open(t)
	core, logs := observer.New(zap.DebugLevel)

	var recs []schema.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, schema.Record{Line: i + 2, Ord: int64(i), Values: []any{int64(i), "d", "X", at(i)}})
	}
	tbl, err := Load(ctx, zap.New(core).Sugar(), tx, st.Dialect(), basic(t), runID, recs, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, tbl.Rows)
	assert.EqualValues(t, 3, tbl.Batches)
	assert.Equal(t, []string{"user_id", "session_id", "event_type", "event_time", OrdColumn}, tbl.Columns)
	assert.Equal(t, 3, logs.FilterMessageSnippet("batch #").Len())
	assert.Equal(t, 1, logs.FilterMessage("staged").Len())

	rows, err := tx.Query(ctx, `SELECT user_id, ord FROM "`+tbl.Name+`" ORDER BY ord`)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	last, _ := storage.AsInt64(rows[4][1])
	assert.EqualValues(t, 4, last)

	require.NoError(t, Drop(ctx, tx, st.Dialect(), tbl))
	_, err = tx.Query(ctx, `SELECT COUNT(*) FROM "`+tbl.Name+`"`)
	assert.Error(t, err, "staging table should be gone")
}

func TestLoadRejectsMistypedRows(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		vals []any
		want string
	}{
		{"nil value", []any{int64(1), nil, "X", at(1)}, "column session_id wants string, got <nil>"},
		{"string for integer", []any{"1", "d", "X", at(1)}, "column user_id wants integer, got string"},
		{"text timestamp", []any{int64(1), "d", "X", "2024-01-01"}, "column event_time wants timestamp, got string"},
		{"short row", []any{int64(1), "d"}, "2 values for 4 columns"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			st, tx := open(t)
			recs := []schema.Record{{Line: 9, Values: c.vals}}
			_, err := Load(context.Background(), nil, tx, st.Dialect(), basic(t), runID, recs, 10)
			require.Error(t, err)
			assert.Equal(t, etlerr.KindStagingWrite, etlerr.KindOf(err))
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestDropWithoutTableIsNoop(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Drop(context.Background(), nil, sqlite.Dialect{}, Table{}))
}
