// Package schema holds the canonical event model: field kinds, the fixed
// column layouts of each loader variant and the positional record type that
// flows between pipeline stages.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the logical type of a canonical field.
type Kind int

const (
	KindInt Kind = iota + 1
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Derive builds a field by joining other fields with Sep. The result is
// missing when any input is missing.
type Derive struct {
	From []string
	Sep  string
}

// Field describes one canonical column.
type Field struct {
	Name string
	Kind Kind

	// BusinessKey marks members of the dedup key.
	BusinessKey bool

	// RankKey marks the timestamp that orders rows within a dedup partition.
	RankKey bool

	// Title applies Unicode title casing after normalization.
	Title bool

	Derive *Derive
}

// Required reports whether the source header must carry this field.
func (f Field) Required() bool { return f.BusinessKey || f.RankKey }

// Variant is a fixed destination layout together with the source headers it
// is usually fed from.
type Variant struct {
	Name  string
	Table string

	// Fields are the stored columns, in table order (excluding the surrogate id).
	Fields []Field

	// Aux fields are mapped from the source but only feed derivations.
	Aux []Field

	// Mapping is the default source header -> field name table.
	Mapping map[string]string

	// Summaries are the default (table, dimension) aggregates.
	Summaries []Summary
}

// Summary names a distinct-user aggregate table.
type Summary struct {
	Table     string
	Dimension string
}

// Index returns the position of name in Fields, or -1.
func (v *Variant) Index(name string) int {
	for i, f := range v.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the stored field named name.
func (v *Variant) Field(name string) (Field, bool) {
	if i := v.Index(name); i >= 0 {
		return v.Fields[i], true
	}
	return Field{}, false
}

// Columns returns the stored column names in table order.
func (v *Variant) Columns() []string {
	out := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = f.Name
	}
	return out
}

// KeyColumns returns the dedup key columns in table order.
func (v *Variant) KeyColumns() []string {
	var out []string
	for _, f := range v.Fields {
		if f.BusinessKey {
			out = append(out, f.Name)
		}
	}
	return out
}

// RankColumn returns the ordering timestamp column.
func (v *Variant) RankColumn() string {
	for _, f := range v.Fields {
		if f.RankKey {
			return f.Name
		}
	}
	return ""
}

// Knows reports whether name is a stored or auxiliary field.
func (v *Variant) Knows(name string) bool {
	if v.Index(name) >= 0 {
		return true
	}
	for _, f := range v.Aux {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Record is one row in positional form, aligned to Variant.Fields.
//
// Between mapping and validation every value is nil or a string. After
// validation values are int64, string or time.Time and never nil.
type Record struct {
	// Line is the 1-based line in the source extract.
	Line int
	// Ord is the input order index assigned by validation.
	Ord    int64
	Values []any
}

var (
	userID      = Field{Name: "user_id", Kind: KindInt, BusinessKey: true}
	sessionID   = Field{Name: "session_id", Kind: KindString, BusinessKey: true}
	eventType   = Field{Name: "event_type", Kind: KindString, BusinessKey: true}
	eventTime   = Field{Name: "event_time", Kind: KindTimestamp, RankKey: true}
	contentType = Field{Name: "content_type", Kind: KindString}
	deviceType  = Field{Name: "device_type", Kind: KindString}
	province    = Field{Name: "province", Kind: KindString, Title: true}
	city        = Field{Name: "city", Kind: KindString, Title: true}
	location    = Field{Name: "location", Kind: KindString, Derive: &Derive{From: []string{"province", "city"}, Sep: ", "}}
	playTimeMS  = Field{Name: "play_time_ms", Kind: KindInt}
)

var baseMapping = map[string]string{
	"Iduser":         "user_id",
	"Device Id":      "session_id",
	"Content Name":   "event_type",
	"start watching": "event_time",
}

func extendedMapping() map[string]string {
	m := map[string]string{
		"Content Type":             "content_type",
		"Device Type":              "device_type",
		"Province":                 "province",
		"City":                     "city",
		"Playing Time Millisecond": "play_time_ms",
	}
	for k, v := range baseMapping {
		m[k] = v
	}
	return m
}

func variants() map[string]*Variant {
	return map[string]*Variant{
		"basic": {
			Name:    "basic",
			Table:   "usb1",
			Fields:  []Field{userID, sessionID, eventType, eventTime},
			Mapping: baseMapping,
		},
		"extended": {
			Name:    "extended",
			Table:   "usb1",
			Fields:  []Field{userID, sessionID, eventType, eventTime, contentType, deviceType, location, playTimeMS},
			Aux:     []Field{province, city},
			Mapping: extendedMapping(),
		},
		"regional": {
			Name:    "regional",
			Table:   "usb3",
			Fields:  []Field{userID, sessionID, eventType, eventTime, contentType, deviceType, province, city, location, playTimeMS},
			Mapping: extendedMapping(),
			Summaries: []Summary{
				{Table: "users_by_province", Dimension: "province"},
				{Table: "users_by_content_type", Dimension: "content_type"},
			},
		},
	}
}

// Lookup returns a fresh copy of the named variant.
func Lookup(name string) (*Variant, error) {
	v, ok := variants()[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("schema: unknown variant %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	mapping := make(map[string]string, len(v.Mapping))
	for k, val := range v.Mapping {
		mapping[k] = val
	}
	v.Mapping = mapping
	return v, nil
}

// Names lists the known variants, sorted.
func Names() []string {
	var out []string
	for k := range variants() {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
