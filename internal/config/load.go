package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"behavioretl/internal/etlerr"
)

// EnvPrefix is prepended to environment overrides, e.g. ETL_SINK_TABLE.
const EnvPrefix = "ETL"

// preset holds the per-variant option defaults.
type preset struct {
	timestampFormat string
	timestampPolicy string
	tiebreak        string
}

var presets = map[string]preset{
	"basic":    {timestampFormat: "auto", timestampPolicy: "drop", tiebreak: "newest"},
	"extended": {timestampFormat: "auto", timestampPolicy: "repair", tiebreak: "newest"},
	"regional": {timestampFormat: "1/2/2006 15:04", timestampPolicy: "repair", tiebreak: "newest"},
}

// SetDefaults installs variant-independent defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("job", "")
	v.SetDefault("variant", "extended")

	v.SetDefault("source.kind", "file")
	v.SetDefault("source.path", "")
	v.SetDefault("source.url", "")
	v.SetDefault("source.insecure_skip_verify", false)

	v.SetDefault("parser.comma", ",")
	v.SetDefault("parser.lazy_quotes", true)

	v.SetDefault("sink.kind", "postgres")
	v.SetDefault("sink.dsn", "")
	v.SetDefault("sink.table", "")
	v.SetDefault("sink.connection.host", "")
	v.SetDefault("sink.connection.port", 0)
	v.SetDefault("sink.connection.database", "")
	v.SetDefault("sink.connection.user", "")
	v.SetDefault("sink.connection.credential", "")

	v.SetDefault("numeric_bounds.user_id.min", 0)
	v.SetDefault("numeric_bounds.user_id.max", 1200000000)
	v.SetDefault("numeric_bounds.play_time_ms.min", 0)

	v.SetDefault("dedup_select", "first")

	v.SetDefault("missing_value_defaults.string", "unknown")
	v.SetDefault("missing_value_defaults.numeric", 0)
	v.SetDefault("missing_value_defaults.timestamp", "1970-01-01T00:00:00Z")

	v.SetDefault("runtime.batch_size", 10000)

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.datadog_addr", "")
}

// setVariantDefaults installs the defaults that depend on the chosen variant.
func setVariantDefaults(v *viper.Viper, variant string) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(variant))]
	if !ok {
		p = presets["extended"]
	}
	v.SetDefault("timestamp_format", p.timestampFormat)
	v.SetDefault("timestamp_policy", p.timestampPolicy)
	v.SetDefault("dedup_tiebreak", p.tiebreak)
}

// NewViper returns a viper instance with defaults and ETL_* environment
// bindings installed.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the pipeline file at path. The format follows the extension
// (.json, .yaml, .yml, .toml); files without one are read as JSON.
// Environment variables override file values.
func Load(path string) (Pipeline, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return Pipeline{}, etlerr.Mark(etlerr.Wrapf(err, "read config %s", path), etlerr.ErrConfig)
	}
	return FromViper(v)
}

// FromViper decodes a populated viper instance.
func FromViper(v *viper.Viper) (Pipeline, error) {
	setVariantDefaults(v, v.GetString("variant"))

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, etlerr.Mark(etlerr.Wrap(err, "decode config"), etlerr.ErrConfig)
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = 10000
	}
	return p, nil
}

// Default returns the built-in configuration for variant with no file.
func Default(variant string) Pipeline {
	v := NewViper()
	v.Set("variant", variant)
	p, _ := FromViper(v)
	return p
}
