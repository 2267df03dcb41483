// Package logging builds the zap loggers used by the CLI and pipeline runs.
// There is no package-level logger; callers pass the result down explicitly.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the output format and verbosity.
type Options struct {
	// JSON emits one JSON object per line for machine consumption.
	JSON bool
	// Verbose enables debug-level output.
	Verbose bool
}

// New builds a sugared logger writing to stderr.
func New(opt Options) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if opt.Verbose {
		level = zap.DebugLevel
	}

	if opt.JSON {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return l.Sugar(), nil
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(os.Stderr),
		level,
	)
	return zap.New(core).Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// ForRun tags every line with the job and run id.
func ForRun(l *zap.SugaredLogger, job, runID string) *zap.SugaredLogger {
	if l == nil {
		l = Nop()
	}
	return l.With("job", job, "run_id", runID)
}
