package pipeline

import (
	"strings"
	"sync"
	"time"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/quality"
	"behavioretl/internal/summary"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Diagnostics are the counters and samples a run accumulates. A failed run
// reports whatever it had gathered when it stopped.
type Diagnostics struct {
	RowsRead     int      `json:"rows_read"`
	ParseErrors  int      `json:"parse_errors"`
	ParseSamples []string `json:"parse_samples,omitempty"`
	// Unmapped lists source headers that feed no field.
	Unmapped []string        `json:"unmapped,omitempty"`
	Quality  *quality.Report `json:"quality,omitempty"`
	Staged   int64           `json:"staged"`
	Batches  int64           `json:"batches"`
	// Published is the destination row count after the swap.
	Published int64 `json:"published"`
	// Warnings are recoverable failures, such as a summary that could not be
	// rebuilt.
	Warnings []string `json:"warnings,omitempty"`
}

// Result is the report of one run.
type Result struct {
	RunID      string          `json:"run_id"`
	Job        string          `json:"job"`
	Variant    string          `json:"variant"`
	Table      string          `json:"table"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Diag       Diagnostics     `json:"diagnostics"`
	Summaries  []summary.Table `json:"summaries,omitempty"`

	ErrorKind etlerr.Kind `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Hint      string      `json:"hint,omitempty"`
	Err       error       `json:"-"`
}

// Published returns the number of rows in the destination after the run.
func (r Result) Published() int64 { return r.Diag.Published }

// OK reports whether the run published.
func (r Result) OK() bool { return r.Status == StatusSuccess }

func (r *Result) fail(err error) {
	r.Status = StatusFailure
	r.Err = err
	r.ErrorKind = etlerr.KindOf(err)
	r.Error = err.Error()
	r.Hint = strings.ReplaceAll(etlerr.FlattenHints(err), "\n--\n", "; ")
}

// errAgg counts messages and keeps the first few.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
