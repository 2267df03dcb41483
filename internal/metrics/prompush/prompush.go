// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Counters, summaries and gauges are kept in a private registry and pushed to
// a Pushgateway on Flush. The loader job is carried in a "pipeline" label
// because "job" is the Pushgateway grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"behavioretl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec // etl_step_total
	stepDuration  *prometheus.SummaryVec // etl_step_duration_seconds
	recordCounter *prometheus.CounterVec // etl_records_total
	batchCounter  *prometheus.CounterVec // etl_batches_total
	runCounter    *prometheus.CounterVec // etl_runs_total
	summaryFails  *prometheus.CounterVec // etl_summary_failures_total
	published     *prometheus.GaugeVec   // etl_published_rows
}

// NewBackend constructs a backend pushing to gatewayURL under jobName
// (default "behavioretl").
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "behavioretl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"pipeline", "step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of pipeline steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"pipeline", "step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record-level counts per kind (read, dropped, published, ...).",
		}, []string{"pipeline", "kind"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Staging copy batches flushed.",
		}, []string{"pipeline"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunsTotal,
			Help: "Finished runs by status and error kind.",
		}, []string{"pipeline", "status", "error_kind"}),
		summaryFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SummaryFailures,
			Help: "Summary tables that could not be rebuilt.",
		}, []string{"pipeline", "table"}),
		published: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.PublishedRows,
			Help: "Rows in the destination table after the last publish.",
		}, []string{"pipeline", "table"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":    b.stepCounter,
		"step summary":    b.stepDuration,
		"record counter":  b.recordCounter,
		"batch counter":   b.batchCounter,
		"run counter":     b.runCounter,
		"summary counter": b.summaryFails,
		"published gauge": b.published,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	job := labels["job"]
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(job, labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(job, labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batchCounter.WithLabelValues(job).Add(delta)
	case metrics.RunsTotal:
		b.runCounter.WithLabelValues(job, labels["status"], labels["error_kind"]).Add(delta)
	case metrics.SummaryFailures:
		b.summaryFails.WithLabelValues(job, labels["table"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration {
		return
	}
	b.stepDuration.WithLabelValues(labels["job"], labels["step"], labels["status"]).Observe(value)
}

func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	if name != metrics.PublishedRows {
		return
	}
	b.published.WithLabelValues(labels["job"], labels["table"]).Set(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
