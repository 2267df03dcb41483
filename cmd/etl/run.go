package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"behavioretl/internal/config"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/metrics"
	"behavioretl/internal/metrics/datadog"
	"behavioretl/internal/metrics/prompush"
	"behavioretl/internal/pipeline"
)

// Function variables used as test seams.
var (
	loadConfigFn = config.Load
	executeFn    = pipeline.Execute
)

type runOptions struct {
	configs        []string
	parallel       int
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more pipeline configs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConfigs(ctx, a.log, o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&o.configs, "config", "c", nil, "pipeline config file (repeatable)")
	f.IntVar(&o.parallel, "parallel", 4, "maximum concurrent runs")
	f.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend (none, prometheus, datadog); overrides the config")
	f.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	f.StringVar(&o.datadogAddr, "datadog-addr", "", "DogStatsD address")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// runConfigs runs every config, at most o.parallel at a time, and writes one
// JSON report per config in argument order. A failed run does not stop the
// others; the command fails when any run failed.
func runConfigs(ctx context.Context, log *zap.SugaredLogger, o *runOptions, out io.Writer) error {
	pipelines := make([]config.Pipeline, len(o.configs))
	loadErrs := make([]error, len(o.configs))
	for i, path := range o.configs {
		pipelines[i], loadErrs[i] = loadConfigFn(path)
	}

	flush := setupMetrics(log, o, pipelines)
	defer flush()

	results := make([]pipeline.Result, len(pipelines))
	var g errgroup.Group
	if o.parallel > 0 {
		g.SetLimit(o.parallel)
	}
	for i := range pipelines {
		g.Go(func() error {
			if err := loadErrs[i]; err != nil {
				results[i] = pipeline.Result{
					Job:       o.configs[i],
					Status:    pipeline.StatusFailure,
					ErrorKind: etlerr.KindOf(err),
					Error:     err.Error(),
				}
				return nil
			}
			results[i], _ = executeFn(ctx, pipelines[i], log)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	failed := 0
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

// setupMetrics installs the backend named by the flags, or else by the first
// config that names one. It returns the flush to run at exit.
func setupMetrics(log *zap.SugaredLogger, o *runOptions, pipelines []config.Pipeline) func() {
	m := config.Metrics{Backend: o.metricsBackend, PushgatewayURL: o.pushgatewayURL, DatadogAddr: o.datadogAddr}
	job := "behavioretl"
	for _, p := range pipelines {
		if p.Metrics.Backend != "" && p.Metrics.Backend != "none" {
			if m.Backend == "" {
				m.Backend = p.Metrics.Backend
			}
			m.PushgatewayURL = firstNonEmpty(m.PushgatewayURL, p.Metrics.PushgatewayURL)
			m.DatadogAddr = firstNonEmpty(m.DatadogAddr, p.Metrics.DatadogAddr)
			m.Tags = p.Metrics.Tags
			job = firstNonEmpty(p.Job, job)
			break
		}
	}

	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(job, firstNonEmpty(m.PushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091"))
		if err != nil {
			log.Warnf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       firstNonEmpty(m.DatadogAddr, os.Getenv("DD_DOGSTATSD_ADDR"), "127.0.0.1:8125"),
			Namespace:  "behavioretl.",
			GlobalTags: m.Tags,
		})
		if err != nil {
			log.Warnf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warnf("metrics: flush error: %v", err)
			}
			_ = b.Close()
			metrics.Reset()
		}
	case "", "none":
		log.Debugf("metrics: disabled")
		return func() {}
	default:
		log.Warnf("metrics: unknown backend %q; metrics disabled", m.Backend)
		return func() {}
	}
	log.Infof("metrics: backend=%s job_name=%s", m.Backend, job)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warnf("metrics: flush error: %v", err)
		}
		metrics.Reset()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
