// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from loader runs.
//
// The package exposes a narrow interface (Backend) of counters, histograms and
// gauges behind a global, pluggable backend that defaults to a no-op, so the
// pipeline can always record. Concrete systems live in subpackages
// (prompush, datadog) and are installed with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names emitted by the helpers below.
const (
	StepTotal       = "etl_step_total"
	StepDuration    = "etl_step_duration_seconds"
	RecordsTotal    = "etl_records_total"
	BatchesTotal    = "etl_batches_total"
	PublishedRows   = "etl_published_rows"
	RunsTotal       = "etl_runs_total"
	SummaryFailures = "etl_summary_failures_total"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge records the current value of a level.
	SetGauge(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset restores the no-op backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one pipeline step.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Kinds mirror the run diagnostics:
//   - "read"
//   - "parse_errors"
//   - "duplicates_removed"
//   - "dropped"
//   - "substituted"
//   - "clipped"
//   - "staged"
//   - "published"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments a batch-level counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordPublished sets the row count of a freshly published table.
func RecordPublished(job, table string, rows int64) {
	current().SetGauge(PublishedRows, float64(rows), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordRun counts a finished run by status and error kind.
func RecordRun(job, status, errorKind string) {
	current().IncCounter(RunsTotal, 1, Labels{
		"job":        job,
		"status":     status,
		"error_kind": errorKind,
	})
}

// RecordSummaryFailure counts a summary table that could not be rebuilt.
func RecordSummaryFailure(job, table string) {
	current().IncCounter(SummaryFailures, 1, Labels{
		"job":   job,
		"table": table,
	})
}
