package quality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
)

var epoch = time.Unix(0, 0).UTC()

func basic(t *testing.T) *schema.Variant {
	t.Helper()
	v, err := schema.Lookup("basic")
	require.NoError(t, err)
	return v
}

func policy(ts TimestampPolicy) Policy {
	return Policy{
		TimestampFormat: "auto",
		Timestamps:      ts,
		Defaults:        Defaults{String: "unknown", Numeric: 0, Timestamp: epoch},
	}
}

func rec(line int, vals ...any) schema.Record { return schema.Record{Line: line, Values: vals} }

func i64(v int64) *int64 { return &v }

func TestValidateEmptyIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Validate(basic(t), nil, policy(Repair))
	require.Error(t, err)
	assert.Equal(t, etlerr.KindEmptySource, etlerr.KindOf(err))
}

func TestValidateTypesValues(t *testing.T) {
	t.Parallel()

	res, err := Validate(basic(t), []schema.Record{
		rec(2, "7", "d1", "X", "2024-01-01 10:00:00"),
		rec(3, "8.0", "d2", "Y", "2024-01-01T12:30:00+02:00"),
	}, policy(Repair))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	r0 := res.Records[0]
	assert.Equal(t, []any{int64(7), "d1", "X", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}, r0.Values)
	assert.EqualValues(t, 0, r0.Ord)

	r1 := res.Records[1]
	assert.Equal(t, int64(8), r1.Values[0])
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), r1.Values[3], "offsets are normalized to UTC")
	assert.EqualValues(t, 1, r1.Ord)
	assert.Equal(t, 2, res.Report.RowsOut)
}

func TestValidateRemovesExactDuplicates(t *testing.T) {
	t.Parallel()

	res, err := Validate(basic(t), []schema.Record{
		rec(2, "7", "d1", "X", "2024-01-01 10:00:00"),
		rec(3, "7", "d1", "X", "2024-01-01 10:00:00"),
		rec(4, "7", "d1", nil, "2024-01-01 10:00:00"),
		rec(5, "7", "d1", nil, "2024-01-01 10:00:00"),
		rec(6, "7", "d1", "X", "2024-01-01 11:00:00"),
	}, policy(Repair))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Report.DuplicatesRemoved)
	require.Len(t, res.Records, 3)
	assert.Equal(t, []int{2, 4, 6}, []int{res.Records[0].Line, res.Records[1].Line, res.Records[2].Line})
}

func TestDedupExactDistinguishesNilFromSentinelText(t *testing.T) {
	t.Parallel()

	out := dedupExact([]schema.Record{rec(1, nil, "a"), rec(2, "", "a"), rec(3, "a", nil), rec(4, nil, "a")})
	assert.Len(t, out, 3)
}

func TestValidateMissingValueDefaults(t *testing.T) {
	t.Parallel()

	res, err := Validate(basic(t), []schema.Record{
		rec(2, nil, nil, "X", nil),
		rec(3, "abc", "d1", "X", "2024-01-01"),
	}, policy(Repair))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	assert.Equal(t, []any{int64(0), "unknown", "X", epoch}, res.Records[0].Values)
	assert.Equal(t, int64(0), res.Records[1].Values[0])

	rep := res.Report
	assert.Equal(t, map[string]int{"user_id": 2, "session_id": 1, "event_time": 1}, rep.Substitutions)
	assert.Equal(t, map[string]int{"user_id": 1}, rep.NumericUnparseable)
}

// An unparseable timestamp is repaired under one policy and drops the row
// under the other.
func TestValidateTimestampPolicies(t *testing.T) {
	t.Parallel()

	input := func() []schema.Record {
		return []schema.Record{
			rec(2, "7", "d1", "X", "not-a-date"),
			rec(3, "7", "d1", "Y", "2024-01-01 10:00"),
			rec(4, "8", "d2", "Y", nil),
		}
	}

	t.Run("repair", func(t *testing.T) {
		t.Parallel()
		res, err := Validate(basic(t), input(), policy(Repair))
		require.NoError(t, err)
		require.Len(t, res.Records, 3)
		assert.Equal(t, epoch, res.Records[0].Values[3])
		assert.Equal(t, 1, res.Report.TimestampUnparseable["event_time"])
		assert.Equal(t, 2, res.Report.Substitutions["event_time"])
		assert.Zero(t, res.Report.RowsDropped)
	})

	t.Run("drop", func(t *testing.T) {
		t.Parallel()
		res, err := Validate(basic(t), input(), policy(Drop))
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, 3, res.Records[0].Line)
		assert.EqualValues(t, 0, res.Records[0].Ord, "ord is dense over surviving rows")

		rep := res.Report
		assert.Equal(t, 2, rep.RowsDropped)
		assert.Equal(t, map[string]int{ReasonUnparseableTimestamp: 1, ReasonMissingTimestamp: 1}, rep.DroppedByReason)
		assert.Equal(t, []string{`line 2: event_time="not-a-date": unparseable_timestamp`}, rep.Samples[ReasonUnparseableTimestamp])
	})
}

func TestValidateExplicitLayout(t *testing.T) {
	t.Parallel()

	p := policy(Repair)
	p.TimestampFormat = "1/2/2006 15:04"
	res, err := Validate(basic(t), []schema.Record{
		rec(2, "7", "d1", "X", "3/17/2024 13:45"),
		rec(3, "7", "d1", "Y", "2024-03-17 13:45:00"),
	}, p)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 17, 13, 45, 0, 0, time.UTC), res.Records[0].Values[3])
	assert.Equal(t, epoch, res.Records[1].Values[3], "only the configured layout is accepted")
}

func TestValidateClipsBoundedIntegers(t *testing.T) {
	t.Parallel()

	p := policy(Repair)
	p.Bounds = map[string]Bounds{"user_id": {Min: i64(0), Max: i64(100)}}
	res, err := Validate(basic(t), []schema.Record{
		rec(2, "-5", "d", "X", "2024-01-01"),
		rec(3, "500", "d", "X", "2024-01-01"),
		rec(4, "50", "d", "X", "2024-01-01"),
	}, p)
	require.NoError(t, err)

	var got []int64
	for _, r := range res.Records {
		got = append(got, r.Values[0].(int64))
	}
	assert.Equal(t, []int64{0, 100, 50}, got)
	assert.Equal(t, 2, res.Report.Clipped["user_id"])
	for _, v := range got {
		assert.True(t, v >= 0 && v <= 100)
	}
}

func TestValidateClampsIntegersBeyondInt64(t *testing.T) {
	t.Parallel()

	p := policy(Repair)
	p.Bounds = map[string]Bounds{"user_id": {Min: i64(0), Max: i64(1200000000)}}
	res, err := Validate(basic(t), []schema.Record{
		rec(2, "99999999999999999999", "d1", "X", "2024-01-01"),
		rec(3, "-99999999999999999999", "d2", "X", "2024-01-01"),
	}, p)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(1200000000), res.Records[0].Values[0])
	assert.Equal(t, int64(0), res.Records[1].Values[0])
	assert.Equal(t, 2, res.Report.Clipped["user_id"])
	assert.Zero(t, res.Report.NumericUnparseable["user_id"])
	assert.Zero(t, res.Report.Substitutions["user_id"])
}

func TestValidateISOMinuteTimestamps(t *testing.T) {
	t.Parallel()

	res, err := Validate(basic(t), []schema.Record{
		rec(2, "7", "d1", "X", "2024-01-01T12:00"),
		rec(3, "7", "d1", "Y", "2024-01-01T12:00:01.5"),
	}, policy(Drop))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), res.Records[0].Values[3])
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 1, 500000000, time.UTC), res.Records[1].Values[3])
	assert.Zero(t, res.Report.RowsDropped)
}

func TestValidateSampleLimit(t *testing.T) {
	t.Parallel()

	var in []schema.Record
	for i := 0; i < 10; i++ {
		in = append(in, rec(i+2, "7", "d1", string(rune('a'+i)), "bad"))
	}
	res, err := Validate(basic(t), in, policy(Drop))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 10, res.Report.RowsDropped)
	assert.Len(t, res.Report.Samples[ReasonUnparseableTimestamp], 3)
}

func TestToIntFast(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"-7", -7, true},
		{"42.0", 42, true},
		{"42.5", 0, false},
		{"", 0, false},
		{"1e3", 0, false},
		{"99999999999999999999", math.MaxInt64, true},
		{"-99999999999999999999", math.MinInt64, true},
	}
	for _, c := range cases {
		got, ok := toIntFast(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestReportLines(t *testing.T) {
	t.Parallel()

	r := newReport()
	r.Substitutions["b"] = 2
	r.Substitutions["a"] = 1
	r.Clipped["user_id"] = 3
	assert.Equal(t, []string{"substituted[a]=1", "substituted[b]=2", "clipped[user_id]=3"}, r.Lines())
	assert.Equal(t, 3, Total(r.Substitutions))
}
