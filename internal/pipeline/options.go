package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"

	"behavioretl/internal/config"
	"behavioretl/internal/datasource"
	"behavioretl/internal/dedup"
	"behavioretl/internal/etlerr"
	"behavioretl/internal/mapper"
	"behavioretl/internal/parser/csv"
	"behavioretl/internal/quality"
	"behavioretl/internal/schema"
	"behavioretl/internal/storage"
	"behavioretl/internal/summary"
)

// SourceFor builds the extract source configured in p.
func SourceFor(p config.Pipeline) (datasource.Source, error) {
	src, err := datasource.New(datasource.Spec{
		Kind:               p.Source.Kind,
		Path:               p.Source.Path,
		URL:                p.Source.URL,
		InsecureSkipVerify: p.Source.InsecureSkipVerify,
	})
	if err != nil {
		return nil, etlerr.Mark(err, etlerr.ErrConfig)
	}
	return src, nil
}

// StoreConfig returns the storage configuration of the sink in p.
func StoreConfig(p config.Pipeline) storage.Config {
	c := p.Sink.Connection
	return storage.Config{
		Kind: p.Sink.Kind,
		DSN:  p.Sink.DSN,
		Connection: storage.Connection{
			Host:       c.Host,
			Port:       c.Port,
			Database:   c.Database,
			User:       c.User,
			Credential: c.Credential,
		},
	}
}

// parserOptions converts the parser section. Comma must be one character.
func parserOptions(p config.Parser) (csv.Options, error) {
	opt := csv.Options{LazyQuotes: p.LazyQuotes}
	if p.Comma == "" {
		return opt, nil
	}
	r, n := utf8.DecodeRuneInString(p.Comma)
	if n != len(p.Comma) || r == utf8.RuneError {
		return opt, etlerr.Config("parser.comma %q must be a single character", p.Comma)
	}
	opt.Comma = r
	return opt, nil
}

// mergeMapping overlays the configured column mapping on the variant's
// default. Keys are compared the way the mapper compares headers, so a
// configured "IDUSER" replaces the default "Iduser".
func mergeMapping(v *schema.Variant, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(v.Mapping)+len(overrides))
	for from, to := range v.Mapping {
		out[mapper.NormalizeHeader(from)] = to
	}
	for from, to := range overrides {
		out[mapper.NormalizeHeader(from)] = to
	}
	return out
}

func qualityPolicy(p config.Pipeline) (quality.Policy, error) {
	pol := quality.Policy{
		TimestampFormat: p.TimestampFormat,
		Timestamps:      quality.TimestampPolicy(p.TimestampPolicy),
		Bounds:          make(map[string]quality.Bounds, len(p.NumericBounds)),
		Defaults: quality.Defaults{
			String:  p.MissingValueDefaults.String,
			Numeric: p.MissingValueDefaults.Numeric,
		},
	}
	if pol.Timestamps == "" {
		pol.Timestamps = quality.Repair
	}
	for field, b := range p.NumericBounds {
		pol.Bounds[field] = quality.Bounds{Min: b.Min, Max: b.Max}
	}
	if s := strings.TrimSpace(p.MissingValueDefaults.Timestamp); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return pol, etlerr.Config("missing_value_defaults.timestamp %q is not RFC 3339", s)
		}
		pol.Defaults.Timestamp = ts.UTC()
	} else {
		pol.Defaults.Timestamp = time.Unix(0, 0).UTC()
	}
	return pol, nil
}

func tiebreak(p config.Pipeline) (dedup.Order, error) {
	o, err := dedup.ParseOrder(p.DedupTiebreak)
	if err != nil {
		return "", etlerr.Mark(err, etlerr.ErrConfig)
	}
	return o, nil
}

func summarySpecs(p config.Pipeline, v *schema.Variant) []summary.Spec {
	cfg := config.SummariesFor(p, v)
	out := make([]summary.Spec, len(cfg))
	for i, s := range cfg {
		out[i] = summary.Spec{Table: s.Table, Dimension: s.Dimension}
	}
	return out
}
