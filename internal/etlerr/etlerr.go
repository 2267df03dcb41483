// Package etlerr defines the error kinds a pipeline run can fail with and
// re-exports the parts of github.com/cockroachdb/errors the rest of the module
// uses, so callers import a single errors package.
//
// Every fatal condition is created with one of the constructors below, which
// mark the error with a sentinel. KindOf recovers the kind across any amount
// of wrapping:
//
//	err := etlerr.Schema("missing columns %v", missing)
//	...
//	if etlerr.KindOf(err) == etlerr.KindSchema { ... }
package etlerr

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetailf  = crdb.WithDetailf
	Is           = crdb.Is
	As           = crdb.As
	Mark         = crdb.Mark
	FlattenHints = crdb.FlattenHints
)

// Kind names a class of pipeline failure. The string form is what run reports
// carry in their error_kind field.
type Kind string

const (
	KindNone         Kind = ""
	KindSchema       Kind = "SchemaError"
	KindEmptySource  Kind = "EmptySourceError"
	KindStagingWrite Kind = "StagingWriteError"
	KindPublish      Kind = "PublishError"
	KindAggregation  Kind = "AggregationWarning"
	KindSource       Kind = "SourceError"
	KindStore        Kind = "StoreError"
	KindConfig       Kind = "ConfigError"
	KindUnknown      Kind = "UnknownError"
)

// Sentinels used as marks. Compare with Is, never with ==.
var (
	ErrSchema       = crdb.New("schema error")
	ErrEmptySource  = crdb.New("empty source")
	ErrStagingWrite = crdb.New("staging write error")
	ErrPublish      = crdb.New("publish error")
	ErrAggregation  = crdb.New("aggregation warning")
	ErrSource       = crdb.New("source error")
	ErrStore        = crdb.New("store error")
	ErrConfig       = crdb.New("config error")
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrSchema, KindSchema},
	{ErrEmptySource, KindEmptySource},
	{ErrStagingWrite, KindStagingWrite},
	{ErrPublish, KindPublish},
	{ErrAggregation, KindAggregation},
	{ErrSource, KindSource},
	{ErrStore, KindStore},
	{ErrConfig, KindConfig},
}

// Schema reports a source header that cannot satisfy the canonical layout.
func Schema(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrSchema)
}

// EmptySource reports an extract with zero records.
func EmptySource(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrEmptySource)
}

// StagingWrite reports a validated row that no longer fits the staging table.
func StagingWrite(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrStagingWrite)
}

// Publish reports a failed post-publish verification.
func Publish(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrPublish)
}

// Aggregation reports a failed summary table. It never aborts a run.
func Aggregation(err error, format string, args ...any) error {
	if err == nil {
		return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrAggregation)
	}
	return crdb.Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrAggregation)
}

// Source wraps a failure to open or read the extract.
func Source(err error, format string, args ...any) error {
	return crdb.Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrSource)
}

// Store wraps a failure reported by the relational store.
func Store(err error, format string, args ...any) error {
	return crdb.Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrStore)
}

// Config reports an unusable configuration.
func Config(format string, args ...any) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrConfig)
}

// KindOf classifies err. Pipeline kinds take precedence over collaborator
// kinds, so a store failure marked as a publish error reports KindPublish.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if crdb.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// Recoverable reports whether err is counted rather than aborting a run.
func Recoverable(err error) bool {
	return err != nil && crdb.Is(err, ErrAggregation)
}
