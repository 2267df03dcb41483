// Package config defines the configuration model for a loader run.
//
// A pipeline file (JSON, YAML or TOML) selects a variant and points at a
// source and a sink; every other option falls back to the variant's defaults.
//
// Example (trimmed):
//
//	{
//	  "job":      "usb-daily",
//	  "variant":  "regional",
//	  "source":   { "kind": "file", "path": "data/usb.csv" },
//	  "sink":     { "kind": "postgres", "connection": { "host": "db", "database": "etl", "user": "etl" } },
//	  "numeric_bounds": { "user_id": { "min": 0, "max": 1200000000 } },
//	  "dedup_tiebreak": "newest"
//	}
package config

// Pipeline is the top-level configuration of one run.
type Pipeline struct {
	// Job labels logs and metrics.
	Job string `mapstructure:"job" json:"job" validate:"required"`

	// Variant selects the fixed column layout (basic, extended, regional).
	Variant string `mapstructure:"variant" json:"variant" validate:"required"`

	Source Source `mapstructure:"source" json:"source"`
	Parser Parser `mapstructure:"parser" json:"parser"`
	Sink   Sink   `mapstructure:"sink" json:"sink"`

	// ColumnMapping maps source header names to canonical field names. Entries
	// extend the variant's built-in mapping.
	ColumnMapping map[string]string `mapstructure:"column_mapping" json:"column_mapping,omitempty"`

	// NumericBounds clamps integer fields. Clamping is lossy; out-of-range
	// values are replaced by the nearest bound and counted.
	NumericBounds map[string]Bounds `mapstructure:"numeric_bounds" json:"numeric_bounds,omitempty"`

	// TimestampFormat is a Go time layout, or "auto" to try common layouts.
	TimestampFormat string `mapstructure:"timestamp_format" json:"timestamp_format"`

	// TimestampPolicy is "repair" (unparseable -> epoch sentinel) or "drop"
	// (rows without a usable rank timestamp are dropped).
	TimestampPolicy string `mapstructure:"timestamp_policy" json:"timestamp_policy" validate:"oneof=repair drop"`

	// DedupTiebreak is "newest" (latest event_time wins) or "oldest".
	DedupTiebreak string `mapstructure:"dedup_tiebreak" json:"dedup_tiebreak" validate:"oneof=newest oldest"`

	// DedupSelect is "first", one row per key. "all" is recognized only so the
	// linter can reject it.
	DedupSelect string `mapstructure:"dedup_select" json:"dedup_select"`

	MissingValueDefaults MissingValueDefaults `mapstructure:"missing_value_defaults" json:"missing_value_defaults"`

	// Summaries replace the variant's default aggregates when non-empty.
	Summaries []Summary `mapstructure:"summaries" json:"summaries,omitempty" validate:"dive"`

	Runtime RuntimeConfig `mapstructure:"runtime" json:"runtime"`
	Metrics Metrics       `mapstructure:"metrics" json:"metrics"`
}

// Source identifies where the extract is read from.
type Source struct {
	// Kind is "file" or "http".
	Kind string `mapstructure:"kind" json:"kind" validate:"required"`
	Path string `mapstructure:"path" json:"path,omitempty"`
	URL  string `mapstructure:"url" json:"url,omitempty"`

	// InsecureSkipVerify disables TLS verification for the http kind.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
}

// Parser configures the CSV reader.
type Parser struct {
	Comma      string `mapstructure:"comma" json:"comma"`
	LazyQuotes bool   `mapstructure:"lazy_quotes" json:"lazy_quotes"`
}

// Sink selects the relational store and destination table.
type Sink struct {
	// Kind is "postgres", "sqlite" or "mssql".
	Kind string `mapstructure:"kind" json:"kind" validate:"required"`

	// DSN overrides Connection when set.
	DSN        string     `mapstructure:"dsn" json:"dsn,omitempty"`
	Connection Connection `mapstructure:"connection" json:"connection"`

	// Table defaults to the variant's table.
	Table string `mapstructure:"table" json:"table"`
}

// Connection holds discrete connection parameters. Credential is usually
// supplied through ETL_SINK_CONNECTION_CREDENTIAL rather than the file.
type Connection struct {
	Host       string `mapstructure:"host" json:"host,omitempty"`
	Port       int    `mapstructure:"port" json:"port,omitempty" validate:"gte=0,lte=65535"`
	Database   string `mapstructure:"database" json:"database,omitempty"`
	User       string `mapstructure:"user" json:"user,omitempty"`
	Credential string `mapstructure:"credential" json:"-"`
}

// Bounds is an inclusive range; a nil end is unbounded.
type Bounds struct {
	Min *int64 `mapstructure:"min" json:"min,omitempty"`
	Max *int64 `mapstructure:"max" json:"max,omitempty"`
}

// MissingValueDefaults are the substitutes for missing values per kind.
type MissingValueDefaults struct {
	String    string `mapstructure:"string" json:"string"`
	Numeric   int64  `mapstructure:"numeric" json:"numeric"`
	Timestamp string `mapstructure:"timestamp" json:"timestamp"`
}

// Summary is one distinct-user aggregate over a published column.
type Summary struct {
	Table     string `mapstructure:"table" json:"table" validate:"required"`
	Dimension string `mapstructure:"dimension" json:"dimension" validate:"required"`
}

// RuntimeConfig controls batching.
type RuntimeConfig struct {
	BatchSize int `mapstructure:"batch_size" json:"batch_size" validate:"gt=0"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend        string   `mapstructure:"backend" json:"backend" validate:"omitempty,oneof=none prometheus datadog"`
	PushgatewayURL string   `mapstructure:"pushgateway_url" json:"pushgateway_url,omitempty"`
	DatadogAddr    string   `mapstructure:"datadog_addr" json:"datadog_addr,omitempty"`
	Tags           []string `mapstructure:"tags" json:"tags,omitempty"`
}

// Int64 is a convenience for building Bounds literals.
func Int64(v int64) *int64 { return &v }
