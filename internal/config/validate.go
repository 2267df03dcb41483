package config

// This file holds a linter for Pipeline values. It performs struct-tag
// validation followed by semantic checks against the chosen variant and
// returns every finding rather than stopping at the first one.

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single lint finding.
//
// Path is a dotted path into the config (e.g. "sink.kind",
// "summaries[1].dimension").
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path"`
	Message  string        `json:"message"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidatePipeline lints p. It never mutates p.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	issues = append(issues, structIssues(p)...)

	variant, err := schema.Lookup(p.Variant)
	if err != nil {
		issues = append(issues, Issue{SeverityError, "variant", err.Error()})
	}

	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateSink(p.Sink)...)
	issues = append(issues, validatePolicies(p)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	if variant != nil {
		issues = append(issues, validateMapping(p.ColumnMapping, variant)...)
		issues = append(issues, validateBounds(p.NumericBounds, variant)...)
		issues = append(issues, validateSummaries(p, variant)...)
	}
	return issues
}

// Check runs ValidatePipeline and folds error-severity issues into one
// ConfigError. Warnings are attached as hints.
func Check(p Pipeline) error {
	var errs, warns []string
	for _, iss := range ValidatePipeline(p) {
		if iss.Severity == SeverityError {
			errs = append(errs, iss.Path+": "+iss.Message)
		} else {
			warns = append(warns, iss.Path+": "+iss.Message)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := etlerr.Config("invalid configuration: %s", strings.Join(errs, "; "))
	for _, w := range warns {
		err = etlerr.WithHint(err, w)
	}
	return err
}

func structIssues(p Pipeline) []Issue {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !etlerr.As(err, &verrs) {
		return []Issue{{SeverityError, "", err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		switch fe.Tag() {
		case "required":
			msg = "must not be empty"
		case "oneof":
			msg = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
		case "gt", "gte", "lte":
			msg = fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
		}
		issues = append(issues, Issue{SeverityError, path, msg})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.path", "file source requires a non-empty path"})
		}
	case "http":
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			issues = append(issues, Issue{SeverityError, "source.url", fmt.Sprintf("http source requires an http(s) url, got %q", s.URL)})
		}
		if s.InsecureSkipVerify {
			issues = append(issues, Issue{SeverityWarning, "source.insecure_skip_verify", "TLS verification is disabled"})
		}
	case "":
		// reported by the struct check
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q (file, http)", s.Kind)})
	}
	return issues
}

func validateParser(p Parser) []Issue {
	if n := len([]rune(p.Comma)); n != 1 {
		return []Issue{{SeverityError, "parser.comma", fmt.Sprintf("comma must be a single character, got %q", p.Comma)}}
	}
	return nil
}

func validateSink(s Sink) []Issue {
	var issues []Issue
	switch s.Kind {
	case "postgres", "mssql":
		if s.DSN == "" && (s.Connection.Host == "" || s.Connection.Database == "") {
			issues = append(issues, Issue{SeverityError, "sink.connection", "either sink.dsn or connection host and database are required"})
		}
	case "sqlite":
		if s.DSN == "" && s.Connection.Database == "" {
			issues = append(issues, Issue{SeverityError, "sink.connection.database", "sqlite needs sink.dsn or a database path"})
		}
	case "":
	default:
		issues = append(issues, Issue{SeverityError, "sink.kind", fmt.Sprintf("unknown sink kind %q (postgres, sqlite, mssql)", s.Kind)})
	}
	if s.DSN != "" && s.Connection.Host != "" {
		issues = append(issues, Issue{SeverityWarning, "sink.connection", "sink.dsn is set; connection parameters are ignored"})
	}
	return issues
}

func validatePolicies(p Pipeline) []Issue {
	var issues []Issue

	switch p.DedupSelect {
	case "", "first":
	case "all":
		issues = append(issues, Issue{SeverityError, "dedup_select",
			"\"all\" keeps every ranked row and defeats deduplication; use \"first\""})
	default:
		issues = append(issues, Issue{SeverityError, "dedup_select", fmt.Sprintf("unknown value %q (first)", p.DedupSelect)})
	}

	if f := p.TimestampFormat; f != "" && f != "auto" {
		ref := time.Date(2024, 3, 17, 13, 45, 0, 0, time.UTC)
		if _, err := time.Parse(f, ref.Format(f)); err != nil || !strings.Contains(f, "06") {
			issues = append(issues, Issue{SeverityWarning, "timestamp_format",
				fmt.Sprintf("%q does not look like a Go time layout (reference time Mon Jan 2 15:04:05 2006)", f)})
		}
	}

	if _, err := time.Parse(time.RFC3339, p.MissingValueDefaults.Timestamp); err != nil {
		issues = append(issues, Issue{SeverityError, "missing_value_defaults.timestamp", "must be an RFC 3339 timestamp"})
	}
	if strings.TrimSpace(p.MissingValueDefaults.String) == "" {
		issues = append(issues, Issue{SeverityWarning, "missing_value_defaults.string", "an empty sentinel is indistinguishable from blank input"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "prometheus":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "prometheus backend requires a pushgateway url"}}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return []Issue{{SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address"}}
		}
	}
	return nil
}

func validateMapping(m map[string]string, v *schema.Variant) []Issue {
	var issues []Issue
	for src, dst := range m {
		if !v.Knows(dst) {
			issues = append(issues, Issue{SeverityError, "column_mapping." + src,
				fmt.Sprintf("target %q is not a field of variant %s", dst, v.Name)})
		}
	}
	return issues
}

func validateBounds(b map[string]Bounds, v *schema.Variant) []Issue {
	var issues []Issue
	for name, rng := range b {
		path := "numeric_bounds." + name
		f, ok := v.Field(name)
		if !ok {
			if !knownToAnyVariant(name) {
				issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf("%q is not a field of any variant", name)})
			}
			continue
		}
		if f.Kind != schema.KindInt {
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("%q is a %s field; only integer fields can be bounded", name, f.Kind)})
			continue
		}
		if rng.Min != nil && rng.Max != nil && *rng.Min > *rng.Max {
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("min %d > max %d", *rng.Min, *rng.Max)})
		}
	}
	return issues
}

func knownToAnyVariant(name string) bool {
	for _, n := range schema.Names() {
		if v, err := schema.Lookup(n); err == nil && v.Index(name) >= 0 {
			return true
		}
	}
	return false
}

func validateSummaries(p Pipeline, v *schema.Variant) []Issue {
	var issues []Issue
	dest := p.Sink.Table
	if dest == "" {
		dest = v.Table
	}
	seen := map[string]int{}
	for i, s := range SummariesFor(p, v) {
		path := fmt.Sprintf("summaries[%d]", i)
		if s.Dimension != "" && v.Index(s.Dimension) < 0 {
			issues = append(issues, Issue{SeverityError, path + ".dimension",
				fmt.Sprintf("%q is not a published column of variant %s", s.Dimension, v.Name)})
		}
		if strings.EqualFold(s.Table, dest) {
			issues = append(issues, Issue{SeverityError, path + ".table", "summary table must differ from the destination table"})
		}
		if j, dup := seen[strings.ToLower(s.Table)]; dup {
			issues = append(issues, Issue{SeverityError, path + ".table", fmt.Sprintf("table %q already used by summaries[%d]", s.Table, j)})
		}
		seen[strings.ToLower(s.Table)] = i
	}
	return issues
}

// SummariesFor returns the configured summaries, or the variant's defaults.
func SummariesFor(p Pipeline, v *schema.Variant) []Summary {
	if len(p.Summaries) > 0 {
		return p.Summaries
	}
	out := make([]Summary, len(v.Summaries))
	for i, s := range v.Summaries {
		out[i] = Summary{Table: s.Table, Dimension: s.Dimension}
	}
	return out
}

// TableFor returns the destination table for p.
func TableFor(p Pipeline, v *schema.Variant) string {
	if p.Sink.Table != "" {
		return p.Sink.Table
	}
	return v.Table
}
