// Package quality applies the ordered data-quality checks that turn mapped
// records into typed, complete records:
//
//  1. an empty input fails the run
//  2. exact duplicates collapse to their first occurrence
//  3. missing values receive per-kind defaults
//  4. unparseable timestamps are repaired or drop the row
//  5. bounded integers are clamped
//
// Row problems are never errors. They are counted in the Report, and rows
// that cannot be repaired come back as rejected outcomes.
package quality

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/schema"
)

// TimestampPolicy decides what happens to an unusable timestamp.
type TimestampPolicy string

const (
	// Repair substitutes the epoch sentinel.
	Repair TimestampPolicy = "repair"
	// Drop rejects rows whose rank timestamp is unusable. Other timestamps
	// are still repaired.
	Drop TimestampPolicy = "drop"
)

// Bounds is an inclusive range; a nil end is unbounded.
type Bounds struct {
	Min *int64
	Max *int64
}

// Defaults are the substitutes for missing values.
type Defaults struct {
	String    string
	Numeric   int64
	Timestamp time.Time
}

// Policy configures a validation pass.
type Policy struct {
	// TimestampFormat is a Go layout, or "auto".
	TimestampFormat string
	Timestamps      TimestampPolicy
	Bounds          map[string]Bounds
	Defaults        Defaults
	// SampleLimit caps the messages kept per drop reason. Zero means 3.
	SampleLimit int
}

// Rejection explains why a row was dropped.
type Rejection struct {
	Line   int
	Field  string
	Reason string
	Value  string
}

func (r Rejection) String() string {
	if r.Value == "" {
		return fmt.Sprintf("line %d: %s: %s", r.Line, r.Field, r.Reason)
	}
	return fmt.Sprintf("line %d: %s=%q: %s", r.Line, r.Field, r.Value, r.Reason)
}

// Outcome is the result of checking one record: either a typed record or a
// rejection.
type Outcome struct {
	Record    schema.Record
	Rejection *Rejection
}

// Result holds the surviving records, in input order with Ord assigned, and
// the diagnostics.
type Result struct {
	Records []schema.Record
	Report  Report
}

// Validate runs every check over recs. The only error is an empty input.
func Validate(v *schema.Variant, recs []schema.Record, p Policy) (Result, error) {
	if len(recs) == 0 {
		return Result{}, etlerr.EmptySource("source contains no data rows")
	}
	limit := p.SampleLimit
	if limit <= 0 {
		limit = 3
	}

	rep := newReport()
	rep.RowsIn = len(recs)
	samples := newSampler(limit)

	unique := dedupExact(recs)
	rep.DuplicatesRemoved = len(recs) - len(unique)

	c := checker{variant: v, policy: p, times: newTimeParser(p.TimestampFormat), report: &rep}
	out := make([]schema.Record, 0, len(unique))
	for _, rec := range unique {
		o := c.check(rec)
		if o.Rejection != nil {
			rep.RowsDropped++
			rep.DroppedByReason[o.Rejection.Reason]++
			samples.add(o.Rejection.Reason, o.Rejection.String())
			continue
		}
		o.Record.Ord = int64(len(out))
		out = append(out, o.Record)
	}
	rep.RowsOut = len(out)
	rep.Samples = samples.first
	return Result{Records: out, Report: rep}, nil
}

// dedupExact keeps the first of every group of records equal in all values.
// Fingerprints only select candidates; equality is confirmed value by value.
func dedupExact(recs []schema.Record) []schema.Record {
	seen := make(map[uint64][]int, len(recs))
	out := make([]schema.Record, 0, len(recs))
	h := xxh3.New()
	for _, rec := range recs {
		fp := fingerprint(h, rec.Values)
		dup := false
		for _, i := range seen[fp] {
			if sameValues(out[i].Values, rec.Values) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[fp] = append(seen[fp], len(out))
		out = append(out, rec)
	}
	return out
}

func fingerprint(h *xxh3.Hasher, vals []any) uint64 {
	h.Reset()
	var lenBuf [8]byte
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			_, _ = h.Write([]byte{0})
			continue
		}
		n := len(s)
		for i := range lenBuf {
			lenBuf[i] = byte(n >> (8 * i))
		}
		_, _ = h.Write([]byte{1})
		_, _ = h.Write(lenBuf[:])
		_, _ = h.WriteString(s)
	}
	return h.Sum64()
}

func sameValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type checker struct {
	variant *schema.Variant
	policy  Policy
	times   timeParser
	report  *Report
}

// check types one record. Steps 3 to 5 run per field in the order the
// package doc lists them.
func (c *checker) check(rec schema.Record) Outcome {
	vals := make([]any, len(c.variant.Fields))
	for i, f := range c.variant.Fields {
		raw, _ := rec.Values[i].(string)
		present := rec.Values[i] != nil

		switch f.Kind {
		case schema.KindInt:
			n, ok := int64(0), false
			if present {
				if n, ok = toIntFast(raw); !ok {
					c.report.NumericUnparseable[f.Name]++
				}
			}
			if !ok {
				n = c.policy.Defaults.Numeric
				c.report.Substitutions[f.Name]++
			}
			vals[i] = c.clip(f.Name, n)

		case schema.KindTimestamp:
			t, ok := time.Time{}, false
			reason := ReasonMissingTimestamp
			if present {
				if t, ok = c.times.parse(raw); !ok {
					c.report.TimestampUnparseable[f.Name]++
					reason = ReasonUnparseableTimestamp
				}
			}
			if !ok {
				if f.RankKey && c.policy.Timestamps == Drop {
					return Outcome{Rejection: &Rejection{Line: rec.Line, Field: f.Name, Reason: reason, Value: raw}}
				}
				t = c.policy.Defaults.Timestamp.UTC()
				c.report.Substitutions[f.Name]++
			}
			vals[i] = t

		default:
			if !present {
				raw = c.policy.Defaults.String
				c.report.Substitutions[f.Name]++
			}
			vals[i] = raw
		}
	}
	return Outcome{Record: schema.Record{Line: rec.Line, Values: vals}}
}

// clip clamps n into the field's bounds. Clamping is lossy and only counted.
func (c *checker) clip(field string, n int64) int64 {
	b, ok := c.policy.Bounds[field]
	if !ok {
		return n
	}
	switch {
	case b.Min != nil && n < *b.Min:
		c.report.Clipped[field]++
		return *b.Min
	case b.Max != nil && n > *b.Max:
		c.report.Clipped[field]++
		return *b.Max
	}
	return n
}

// toIntFast parses integers quickly and only falls back to float parsing when
// the field contains a '.' (supporting inputs like "42.0"). Integers outside
// the int64 range saturate so clip can clamp them to the field's bounds.
func toIntFast(s string) (int64, bool) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, true
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == float64(int64(f)) {
				return int64(f), true
			}
		}
	}
	return 0, false
}
