// Package mapper turns raw extract rows into canonical records: it resolves
// which source column feeds each field, normalizes cell text and computes
// derived fields.
package mapper

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"behavioretl/internal/etlerr"
	"behavioretl/internal/parser/csv"
	"behavioretl/internal/schema"
)

// Mapper holds a resolved header plan. It is not safe for concurrent use.
type Mapper struct {
	variant *schema.Variant

	// slots are the stored fields followed by the auxiliary ones.
	slots []schema.Field
	// src[i] is the header index feeding slots[i], or -1.
	src []int
	// index finds a slot by field name.
	index map[string]int

	header   []string
	unmapped []string
	title    cases.Caser
}

// New resolves header against mapping (source header -> field name). A nil
// mapping uses the variant's default. Header cells and mapping keys are
// compared by NormalizeHeader, and a header that already names a field maps
// to it. It fails with a schema error when a required field has no column.
func New(v *schema.Variant, mapping map[string]string, header []string) (*Mapper, error) {
	if mapping == nil {
		mapping = v.Mapping
	}
	m := &Mapper{
		variant: v,
		header:  header,
		index:   map[string]int{},
		title:   cases.Title(language.Und),
	}
	m.slots = append(append(m.slots, v.Fields...), v.Aux...)
	m.src = make([]int, len(m.slots))
	for i, f := range m.slots {
		m.src[i] = -1
		m.index[f.Name] = i
	}

	targets := make(map[string]string, len(mapping))
	for from, to := range mapping {
		to = strings.TrimSpace(to)
		if !v.Knows(to) {
			return nil, etlerr.Schema("column mapping %q -> %q: %q is not a field of variant %s", from, to, to, v.Name)
		}
		targets[NormalizeHeader(from)] = to
	}

	for hi, h := range header {
		key := NormalizeHeader(h)
		to, ok := targets[key]
		if !ok && v.Knows(key) {
			to, ok = key, true
		}
		if !ok {
			m.unmapped = append(m.unmapped, h)
			continue
		}
		si := m.index[to]
		if m.src[si] >= 0 {
			// First matching column wins.
			m.unmapped = append(m.unmapped, h)
			continue
		}
		m.src[si] = hi
	}

	var missing []string
	for i, f := range v.Fields {
		if f.Required() && m.src[i] < 0 {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		err := etlerr.Schema("source lacks required fields %s", strings.Join(missing, ", "))
		return nil, etlerr.WithHintf(err, "header was [%s]; map these fields with column_mapping", strings.Join(header, ", "))
	}
	return m, nil
}

// Variant returns the layout records are mapped to.
func (m *Mapper) Variant() *schema.Variant { return m.variant }

// Unmapped lists the source headers that feed no field, in header order.
func (m *Mapper) Unmapped() []string { return append([]string(nil), m.unmapped...) }

// Plan returns field -> source header for every field fed from the source.
func (m *Mapper) Plan() map[string]string {
	out := make(map[string]string, len(m.slots))
	for i, f := range m.slots {
		if m.src[i] >= 0 {
			out[f.Name] = m.header[m.src[i]]
		}
	}
	return out
}

// Absent lists stored fields with neither a source column nor a derivation.
// Their values are always missing.
func (m *Mapper) Absent() []string {
	var out []string
	for i, f := range m.variant.Fields {
		if m.src[i] < 0 && f.Derive == nil {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Map converts one raw row. Values are nil (missing) or normalized strings,
// aligned to Variant.Fields.
func (m *Mapper) Map(raw csv.RawRecord) schema.Record {
	vals := make([]any, len(m.slots))
	for i, f := range m.slots {
		cell, ok := raw.Cell(m.src[i])
		if !ok {
			continue
		}
		s, ok := normalizeValue(cell)
		if !ok {
			continue
		}
		if f.Title {
			s = m.title.String(s)
		}
		vals[i] = s
	}
	for i, f := range m.slots {
		if f.Derive == nil || m.src[i] >= 0 {
			continue
		}
		vals[i] = m.derive(f.Derive, vals)
	}
	return schema.Record{Line: raw.Line, Values: vals[:len(m.variant.Fields):len(m.variant.Fields)]}
}

func (m *Mapper) derive(d *schema.Derive, vals []any) any {
	parts := make([]string, 0, len(d.From))
	for _, name := range d.From {
		si, ok := m.index[name]
		if !ok || vals[si] == nil {
			return nil
		}
		parts = append(parts, vals[si].(string))
	}
	return strings.Join(parts, d.Sep)
}

// MapAll converts every row of an extract.
func (m *Mapper) MapAll(raws []csv.RawRecord) []schema.Record {
	out := make([]schema.Record, len(raws))
	for i, r := range raws {
		out[i] = m.Map(r)
	}
	return out
}
