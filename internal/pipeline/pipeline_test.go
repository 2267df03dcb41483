package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"behavioretl/internal/config"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/metrics"
	"behavioretl/internal/storage"
	"behavioretl/internal/storage/sqlite"
)

// textSource serves a fixed extract.
type textSource string

func (s textSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

const scenarioA = "Iduser,start watching,Device Id,Content Name\n" +
	"7,2024-01-01T10:00,d1,X\n" +
	"7,2024-01-01T12:00,d1,X\n"

func memStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, closeFn, err := sqlite.NewStore(context.Background(), sqlite.Config{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return st
}

func pipelineFor(variant string) config.Pipeline {
	p := config.Default(variant)
	p.Job = "test-" + variant
	p.Sink.Kind = "sqlite"
	return p
}

func run(t *testing.T, st storage.Store, p config.Pipeline, src string) (Result, error) {
	t.Helper()
	rc, err := NewRunContext(p, zap.NewNop().Sugar())
	require.NoError(t, err)
	return Run(context.Background(), rc, textSource(src), st)
}

// dump reads a table ordered by id, rendering timestamps as RFC 3339.
func dump(t *testing.T, st storage.Store, table string, cols ...string) [][]string {
	t.Helper()
	ctx := context.Background()
	d := st.Dialect()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, "SELECT "+strings.Join(storage.QuoteAll(d, cols), ", ")+
		" FROM "+d.QuoteTable(table)+" ORDER BY "+d.Quote(storage.IDColumn))
	require.NoError(t, err)
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = make([]string, len(r))
		for j, v := range r {
			if cols[j] == "event_time" {
				ts, err := storage.AsTime(v)
				require.NoError(t, err)
				out[i][j] = ts.Format(time.RFC3339)
				continue
			}
			out[i][j] = storage.AsString(v)
		}
	}
	return out
}

func TestScenarioANewestWins(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	res, err := run(t, st, pipelineFor("basic"), scenarioA)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.EqualValues(t, 1, res.Published())
	assert.EqualValues(t, 2, res.Diag.Staged)
	assert.Equal(t, "usb1", res.Table)
	assert.Empty(t, res.Diag.Quality.TimestampUnparseable)
	assert.Zero(t, res.Diag.Quality.RowsDropped)

	got := dump(t, st, "usb1", "id", "user_id", "session_id", "event_type", "event_time")
	assert.Equal(t, [][]string{{"1", "7", "d1", "X", "2024-01-01T12:00:00Z"}}, got)
}

func TestDefaultPresetsKeepLatestEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		variant      string
		early, late  string
		table        string
		extraHeaders string
	}{
		{variant: "basic", early: "2024-01-01T10:00", late: "2024-01-01T12:00", table: "usb1"},
		{variant: "extended", early: "2024-01-01T10:00", late: "2024-01-01T12:00", table: "usb1",
			extraHeaders: ",Province,City"},
		// regional reads its own fixed layout.
		{variant: "regional", early: "1/1/2024 10:00", late: "1/1/2024 12:00", table: "usb3",
			extraHeaders: ",Province,City"},
	}
	for _, tc := range cases {
		t.Run(tc.variant, func(t *testing.T) {
			t.Parallel()

			extra := ""
			if tc.extraHeaders != "" {
				extra = ",ha noi,ba dinh"
			}
			src := "Iduser,start watching,Device Id,Content Name" + tc.extraHeaders + "\n" +
				"7," + tc.late + ",d1,X" + extra + "\n" +
				"7," + tc.early + ",d1,X" + extra + "\n"

			st := memStore(t)
			p := pipelineFor(tc.variant)
			require.Equal(t, "newest", p.DedupTiebreak)
			res, err := run(t, st, p, src)
			require.NoError(t, err)
			assert.EqualValues(t, 1, res.Published())
			assert.Empty(t, res.Diag.Quality.TimestampUnparseable)
			assert.Equal(t, [][]string{{"7", "2024-01-01T12:00:00Z"}}, dump(t, st, tc.table, "user_id", "event_time"))
		})
	}
}

func TestScenarioBEmptySourceKeepsDestination(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	p := pipelineFor("extended")
	_, err := run(t, st, p, scenarioA)
	require.NoError(t, err)
	before := dump(t, st, "usb1", "id", "user_id", "event_time")

	for name, src := range map[string]string{
		"no bytes":    "",
		"header only": "Iduser,start watching,Device Id,Content Name\n",
	} {
		res, err := run(t, st, p, src)
		require.Error(t, err, name)
		assert.Equal(t, etlerr.KindEmptySource, etlerr.KindOf(err), name)
		assert.Equal(t, StatusFailure, res.Status, name)
		assert.Equal(t, etlerr.KindEmptySource, res.ErrorKind, name)
		assert.Equal(t, before, dump(t, st, "usb1", "id", "user_id", "event_time"), name)
	}
}

func TestScenarioCUnparseableTimestamp(t *testing.T) {
	t.Parallel()

	src := "Iduser,start watching,Device Id,Content Name\n" +
		"7,not-a-time,d1,X\n" +
		"8,2024-01-01 10:00:00,d2,Y\n"

	t.Run("repair", func(t *testing.T) {
		t.Parallel()
		st := memStore(t)
		p := pipelineFor("basic")
		p.TimestampPolicy = "repair"
		res, err := run(t, st, p, src)
		require.NoError(t, err)
		assert.EqualValues(t, 2, res.Published())
		assert.Equal(t, 1, res.Diag.Quality.TimestampUnparseable["event_time"])
		assert.Equal(t, 1, res.Diag.Quality.Substitutions["event_time"])
		got := dump(t, st, "usb1", "user_id", "event_time")
		assert.Equal(t, []string{"7", "1970-01-01T00:00:00Z"}, got[0])
	})

	t.Run("drop", func(t *testing.T) {
		t.Parallel()
		st := memStore(t)
		p := pipelineFor("basic")
		p.TimestampPolicy = "drop"
		res, err := run(t, st, p, src)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.Published())
		assert.Equal(t, 1, res.Diag.Quality.RowsDropped)
		assert.Equal(t, 1, res.Diag.Quality.DroppedByReason["unparseable_timestamp"])
		assert.Equal(t, [][]string{{"8"}}, dump(t, st, "usb1", "user_id"))
	})
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	src := "Iduser,start watching,Device Id,Content Name,Device Type\n" +
		"9,2024-01-02 08:00:00,d9,Z,tv\n" +
		"7,2024-01-01 10:00:00,d1,X,tv\n" +
		"7,2024-01-01 12:00:00,d1,X,phone\n" +
		"7,2024-01-01 12:00:00,d1,X,phone\n" +
		"8,2024-01-01 09:00:00,d2,Y,\n"

	st := memStore(t)
	p := pipelineFor("extended")
	cols := []string{"id", "user_id", "session_id", "event_type", "event_time", "device_type"}

	first, err := run(t, st, p, src)
	require.NoError(t, err)
	a := dump(t, st, "usb1", cols...)
	second, err := run(t, st, p, src)
	require.NoError(t, err)
	b := dump(t, st, "usb1", cols...)

	assert.Equal(t, a, b)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.EqualValues(t, 3, first.Published())
	assert.Equal(t, 1, first.Diag.Quality.DuplicatesRemoved)
	// Rows are published in key order.
	assert.Equal(t, []string{"1", "7", "d1", "X", "2024-01-01T12:00:00Z", "phone"}, a[0])
	assert.Equal(t, []string{"2", "8", "d2", "Y", "2024-01-01T09:00:00Z", "unknown"}, a[1])
}

func TestRangeClipping(t *testing.T) {
	t.Parallel()

	src := "Iduser,start watching,Device Id,Content Name,Playing Time Millisecond\n" +
		"9999999999,2024-01-01 10:00:00,d1,X,-5\n" +
		"-3,2024-01-01 10:00:00,d2,X,1500\n"

	st := memStore(t)
	res, err := run(t, st, pipelineFor("extended"), src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Diag.Quality.Clipped["user_id"])
	assert.Equal(t, 1, res.Diag.Quality.Clipped["play_time_ms"])

	got := dump(t, st, "usb1", "user_id", "play_time_ms")
	assert.ElementsMatch(t, [][]string{{"0", "1500"}, {"1200000000", "0"}}, got)
}

func TestOldestTiebreak(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	p := pipelineFor("basic")
	p.DedupTiebreak = "oldest"
	_, err := run(t, st, p, scenarioA)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2024-01-01T10:00:00Z"}}, dump(t, st, "usb1", "event_time"))
}

func TestSchemaErrorCarriesHint(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	res, err := run(t, st, pipelineFor("basic"), "uid,when\n1,2024-01-01\n")
	require.Error(t, err)
	assert.Equal(t, etlerr.KindSchema, res.ErrorKind)
	assert.Contains(t, res.Error, "user_id")
	assert.Contains(t, res.Hint, "column_mapping")
}

func TestColumnMappingMergesOverDefaults(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	p := pipelineFor("basic")
	// viper hands the keys over lowercased.
	p.ColumnMapping = map[string]string{"kode user": "user_id"}
	src := "Kode User,start watching,Device Id,Content Name,Extra\n5,2024-01-01 10:00:00,d1,X,?\n"

	res, err := run(t, st, p, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"Extra"}, res.Diag.Unmapped)
	assert.Equal(t, [][]string{{"5"}}, dump(t, st, "usb1", "user_id"))
}

func TestRegionalSummaries(t *testing.T) {
	t.Parallel()

	src := "Iduser,start watching,Device Id,Content Name,Content Type,Province,City\n" +
		"1,1/2/2024 10:00,d1,X,movie,ha noi,ba dinh\n" +
		"2,1/2/2024 10:05,d2,X,movie,ha noi,dong da\n" +
		"3,1/2/2024 11:00,d3,Y,series,da nang,hai chau\n"

	st := memStore(t)
	res, err := run(t, st, pipelineFor("regional"), src)
	require.NoError(t, err)
	assert.Equal(t, "usb3", res.Table)
	assert.Empty(t, res.Diag.Warnings)
	require.Len(t, res.Summaries, 2)
	assert.Equal(t, "users_by_province", res.Summaries[0].Name)
	assert.EqualValues(t, 2, res.Summaries[0].Rows[1].Users)
	assert.Equal(t, "Ha Noi", res.Summaries[0].Rows[1].Value)

	got := dump(t, st, "usb3", "province", "city", "location")
	assert.Equal(t, []string{"Ha Noi", "Ba Dinh", "Ha Noi, Ba Dinh"}, got[0])
}

func TestSummaryFailureIsWarning(t *testing.T) {
	t.Parallel()

	st := memStore(t)
	p := pipelineFor("basic")
	p.Summaries = []config.Summary{{Table: "by_nothing", Dimension: "nothing"}}
	res, err := run(t, st, p, scenarioA)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Diag.Warnings, 1)
	assert.Contains(t, res.Diag.Warnings[0], "by_nothing")
}

func TestRunLogsSummaryLine(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	rc, err := NewRunContext(pipelineFor("extended"), zap.New(core).Sugar())
	require.NoError(t, err)
	_, err = Run(context.Background(), rc, textSource(scenarioA), memStore(t))
	require.NoError(t, err)

	var line string
	for _, e := range logs.All() {
		if strings.HasPrefix(e.Message, "summary: ") {
			line = e.Message
			assert.Equal(t, rc.RunID.String(), e.ContextMap()["run_id"])
		}
	}
	assert.Contains(t, line, "read=2")
	assert.Contains(t, line, "published=1")
}

func TestRunFromFileWithParseErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.csv")
	body := "Iduser;start watching;Device Id;Content Name\n" +
		"7;2024-01-01 10:00:00;d1;X\n" +
		"8;2024-01-01 10:00:00;\"d2\"x;Y\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	p := pipelineFor("extended")
	p.Source.Path = path
	p.Parser.Comma = ";"
	p.Parser.LazyQuotes = false
	src, err := SourceFor(p)
	require.NoError(t, err)

	rc, err := NewRunContext(p, nil)
	require.NoError(t, err)
	res, err := Run(context.Background(), rc, src, memStore(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Diag.ParseErrors)
	require.Len(t, res.Diag.ParseSamples, 1)
	assert.Contains(t, res.Diag.ParseSamples[0], "line=3")
	assert.EqualValues(t, 1, res.Published())
}

func TestInvalidOptionsFailBeforeReading(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*config.Pipeline){
		"comma":     func(p *config.Pipeline) { p.Parser.Comma = ";;" },
		"timestamp": func(p *config.Pipeline) { p.MissingValueDefaults.Timestamp = "yesterday" },
		"tiebreak":  func(p *config.Pipeline) { p.DedupTiebreak = "all" },
	} {
		p := pipelineFor("basic")
		mutate(&p)
		res, err := run(t, memStore(t), p, scenarioA)
		require.Error(t, err, name)
		assert.Equal(t, etlerr.KindConfig, res.ErrorKind, name)
	}
}

func TestMergeMapping(t *testing.T) {
	t.Parallel()

	p := pipelineFor("basic")
	rc, err := NewRunContext(p, nil)
	require.NoError(t, err)
	m := mergeMapping(rc.Variant, map[string]string{"IDUSER": "session_id"})
	assert.Equal(t, "session_id", m["iduser"])
	assert.Equal(t, "event_time", m["start_watching"])
}

// recorder captures counter names for the metrics test.
type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
}

func (r *recorder) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"/"+l["kind"]+l["status"]] += delta
}
func (r *recorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *recorder) SetGauge(name string, v float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name+"/"+l["table"]] = v
}
func (r *recorder) Flush() error { return nil }

// Not parallel: it swaps the process metrics backend.
func TestRunRecordsMetrics(t *testing.T) {
	rec := &recorder{counters: map[string]float64{}, gauges: map[string]float64{}}
	metrics.SetBackend(rec)
	defer metrics.Reset()

	_, err := run(t, memStore(t), pipelineFor("extended"), scenarioA)
	require.NoError(t, err)

	assert.EqualValues(t, 2, rec.counters[metrics.RecordsTotal+"/read"])
	assert.EqualValues(t, 2, rec.counters[metrics.RecordsTotal+"/staged"])
	assert.EqualValues(t, 1, rec.counters[metrics.RecordsTotal+"/published"])
	assert.EqualValues(t, 1, rec.counters[metrics.RunsTotal+"/success"])
	assert.EqualValues(t, 1, rec.gauges[metrics.PublishedRows+"/usb1"])
}
