// Package pipeline runs one load end to end: read the extract, map and
// validate it, stage it, publish the deduplicated rows and rebuild the
// summaries.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"behavioretl/internal/config"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/logging"
	"behavioretl/internal/schema"
)

// RunContext carries everything one run needs. Nothing about a run lives in
// package state.
type RunContext struct {
	RunID   uuid.UUID
	Job     string
	Config  config.Pipeline
	Variant *schema.Variant
	// Log is tagged with the job and run id.
	Log *zap.SugaredLogger
	// Now is the run clock.
	Now func() time.Time
}

// NewRunContext resolves the variant of p and assigns a fresh run id.
func NewRunContext(p config.Pipeline, log *zap.SugaredLogger) (*RunContext, error) {
	v, err := schema.Lookup(p.Variant)
	if err != nil {
		return nil, etlerr.Mark(err, etlerr.ErrConfig)
	}
	id := uuid.New()
	return &RunContext{
		RunID:   id,
		Job:     p.Job,
		Config:  p,
		Variant: v,
		Log:     logging.ForRun(log, p.Job, id.String()),
		Now:     time.Now,
	}, nil
}

func (rc *RunContext) now() time.Time {
	if rc.Now == nil {
		return time.Now().UTC()
	}
	return rc.Now().UTC()
}
