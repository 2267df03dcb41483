package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"behavioretl/internal/config"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/metrics"
	"behavioretl/internal/storage"
)

// newStore opens the sink; tests replace it.
var newStore = storage.New

// Execute lints p, opens its source and sink and runs it. Failures that
// happen before the run starts still produce a failed Result.
func Execute(ctx context.Context, p config.Pipeline, log *zap.SugaredLogger) (Result, error) {
	if err := config.Check(p); err != nil {
		return failed(p, err), err
	}
	rc, err := NewRunContext(p, log)
	if err != nil {
		return failed(p, err), err
	}
	src, err := SourceFor(p)
	if err != nil {
		return failed(p, err), err
	}
	store, err := newStore(ctx, StoreConfig(p))
	if err != nil {
		err = etlerr.Store(err, "open %s sink", p.Sink.Kind)
		return failed(p, err), err
	}
	defer store.Close()
	rc.Log.Infow("run started", "variant", rc.Variant.Name, "source", p.Source.Kind, "sink", p.Sink.Kind)
	return Run(ctx, rc, src, store)
}

func failed(p config.Pipeline, err error) Result {
	now := time.Now().UTC()
	r := Result{Job: p.Job, Variant: p.Variant, Table: p.Sink.Table, StartedAt: now, FinishedAt: now}
	r.fail(err)
	metrics.RecordRun(p.Job, r.Status, string(r.ErrorKind))
	return r
}
