package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"behavioretl/internal/config"
	"behavioretl/internal/datasource"
	"behavioretl/internal/dedup"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/mapper"
	"behavioretl/internal/metrics"
	"behavioretl/internal/parser/csv"
	"behavioretl/internal/publish"
	"behavioretl/internal/quality"
	"behavioretl/internal/schema"
	"behavioretl/internal/staging"
	"behavioretl/internal/storage"
	"behavioretl/internal/summary"
)

// sampleLimit caps the parse error messages kept in a report.
const sampleLimit = 3

// Run executes one load of src into store.
//
//	read → map → validate → [stage → publish → drop staging] → commit → summaries
//
// Staging and publish share one transaction; any failure in between rolls
// it back and the destination keeps its previous contents. Summary failures
// are warnings. The returned Result is complete even when err is not nil.
func Run(ctx context.Context, rc *RunContext, src datasource.Source, store storage.Store) (res Result, err error) {
	log := rc.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := rc.Config
	v := rc.Variant
	job := rc.Job

	res = Result{
		RunID:     rc.RunID.String(),
		Job:       job,
		Variant:   v.Name,
		Table:     config.TableFor(p, v),
		StartedAt: rc.now(),
	}
	defer func() {
		res.FinishedAt = rc.now()
		if err != nil {
			res.fail(err)
			log.Errorw("run failed", "kind", res.ErrorKind, "err", err)
		} else {
			res.Status = StatusSuccess
		}
		metrics.RecordRun(job, res.Status, string(res.ErrorKind))
	}()

	step := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		metrics.RecordStep(job, name, err, time.Since(start))
		return err
	}

	// Configuration conversions fail before anything is read.
	popt, err := parserOptions(p.Parser)
	if err != nil {
		return res, err
	}
	policy, err := qualityPolicy(p)
	if err != nil {
		return res, err
	}
	order, err := tiebreak(p)
	if err != nil {
		return res, err
	}

	var extract *csv.Extract
	if err = step("read", func() error {
		extract, err = read(ctx, src, popt, &res.Diag)
		return err
	}); err != nil {
		return res, err
	}
	metrics.RecordRow(job, "read", int64(res.Diag.RowsRead))
	metrics.RecordRow(job, "parse_errors", int64(res.Diag.ParseErrors))
	if n := res.Diag.ParseErrors; n > 0 {
		log.Warnf("parse errors: %d (showing first %d)", n, len(res.Diag.ParseSamples))
		for i, s := range res.Diag.ParseSamples {
			log.Warnf("  #%03d: %s", i+1, s)
		}
	}
	if extract.Header == nil {
		return res, etlerr.EmptySource("source has no header and no rows")
	}

	var mapped []schema.Record
	if err = step("map", func() error {
		m, err := mapper.New(v, mergeMapping(v, p.ColumnMapping), extract.Header)
		if err != nil {
			return err
		}
		res.Diag.Unmapped = m.Unmapped()
		if len(res.Diag.Unmapped) > 0 {
			log.Infow("unmapped source columns", "columns", res.Diag.Unmapped)
		}
		mapped = m.MapAll(extract.Records)
		return nil
	}); err != nil {
		return res, err
	}

	var valid quality.Result
	if err = step("validate", func() error {
		valid, err = quality.Validate(v, mapped, policy)
		return err
	}); err != nil {
		return res, err
	}
	rep := valid.Report
	res.Diag.Quality = &rep
	recordQuality(job, rep)
	logQuality(log, rep)

	resolved := dedup.Resolve(v, valid.Records, order)

	if err = load(ctx, rc, store, step, valid.Records, int64(len(resolved)), order, &res); err != nil {
		return res, err
	}

	specs := summarySpecs(p, v)
	if len(specs) > 0 {
		_ = step("summarize", func() error {
			tables, warnings := summary.Build(ctx, log, store, v, res.Table, specs, res.RunID)
			res.Summaries = tables
			for _, w := range warnings {
				res.Diag.Warnings = append(res.Diag.Warnings, w.Error())
			}
			built := make(map[string]bool, len(tables))
			for _, t := range tables {
				built[t.Name] = true
			}
			for _, sp := range specs {
				if !built[sp.Table] {
					metrics.RecordSummaryFailure(job, sp.Table)
				}
			}
			if len(warnings) > 0 {
				return warnings[0]
			}
			return nil
		})
	}

	log.Infof("summary: read=%d parse_errors=%d duplicates_removed=%d dropped=%d substituted=%d clipped=%d staged=%d batches=%d published=%d",
		res.Diag.RowsRead, res.Diag.ParseErrors, rep.DuplicatesRemoved, rep.RowsDropped,
		quality.Total(rep.Substitutions), quality.Total(rep.Clipped),
		res.Diag.Staged, res.Diag.Batches, res.Diag.Published)
	return res, nil
}

// read opens and parses the extract.
func read(ctx context.Context, src datasource.Source, opt csv.Options, diag *Diagnostics) (*csv.Extract, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, etlerr.Source(err, "open source")
	}
	defer rc.Close()

	agg := newErrAgg(sampleLimit)
	ex, err := csv.Read(ctx, rc, opt, func(line int, err error) {
		agg.add(fmt.Sprintf("line=%d: %v", line, err))
	})
	if err != nil {
		return nil, etlerr.Source(err, "read source")
	}
	diag.RowsRead = len(ex.Records)
	diag.ParseErrors = ex.ParseErrors
	diag.ParseSamples = agg.first
	return ex, nil
}

// load stages, publishes and commits in one transaction.
func load(
	ctx context.Context,
	rc *RunContext,
	store storage.Store,
	step func(string, func() error) error,
	recs []schema.Record,
	expected int64,
	order dedup.Order,
	res *Result,
) (err error) {
	log := rc.Log
	d := store.Dialect()

	tx, err := store.Begin(ctx)
	if err != nil {
		return etlerr.Store(err, "begin")
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				log.Warnw("rollback failed", "err", rerr)
			}
		}
	}()

	var tbl staging.Table
	if err = step("stage", func() error {
		tbl, err = staging.Load(ctx, log, tx, d, rc.Variant, res.RunID, recs, rc.Config.Runtime.BatchSize)
		return err
	}); err != nil {
		return err
	}
	res.Diag.Staged = tbl.Rows
	res.Diag.Batches = tbl.Batches
	metrics.RecordRow(rc.Job, "staged", tbl.Rows)
	metrics.RecordBatches(rc.Job, tbl.Batches)

	var pub publish.Result
	if err = step("publish", func() error {
		pub, err = publish.Publish(ctx, log, tx, d, publish.Request{
			Dest:     res.Table,
			Variant:  rc.Variant,
			Staging:  tbl.Name,
			Order:    order,
			Expected: expected,
			RunID:    res.RunID,
		})
		return err
	}); err != nil {
		return err
	}

	if err = staging.Drop(ctx, tx, d, tbl); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return etlerr.Store(err, "commit")
	}
	committed = true

	res.Diag.Published = pub.Rows
	metrics.RecordRow(rc.Job, "published", pub.Rows)
	metrics.RecordPublished(rc.Job, res.Table, pub.Rows)
	return nil
}

func recordQuality(job string, rep quality.Report) {
	metrics.RecordRow(job, "duplicates_removed", int64(rep.DuplicatesRemoved))
	metrics.RecordRow(job, "dropped", int64(rep.RowsDropped))
	metrics.RecordRow(job, "substituted", int64(quality.Total(rep.Substitutions)))
	metrics.RecordRow(job, "clipped", int64(quality.Total(rep.Clipped)))
}

func logQuality(log *zap.SugaredLogger, rep quality.Report) {
	for _, l := range rep.Lines() {
		log.Debugw("quality", "counter", l)
	}
	for reason, samples := range rep.Samples {
		log.Infof("dropped %s: %d (showing first %d)", reason, rep.DroppedByReason[reason], len(samples))
		for i, s := range samples {
			log.Infof("  #%03d: %s", i+1, s)
		}
	}
}
