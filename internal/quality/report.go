package quality

import (
	"fmt"
	"sort"
)

// Drop reasons.
const (
	ReasonUnparseableTimestamp = "unparseable_timestamp"
	ReasonMissingTimestamp     = "missing_timestamp"
)

// Report is the diagnostic summary of one validation pass. Counters are keyed
// by field where that is meaningful.
type Report struct {
	RowsIn               int            `json:"rows_in"`
	DuplicatesRemoved    int            `json:"duplicates_removed"`
	RowsDropped          int            `json:"rows_dropped"`
	DroppedByReason      map[string]int `json:"dropped_by_reason,omitempty"`
	Substitutions        map[string]int `json:"substitutions,omitempty"`
	NumericUnparseable   map[string]int `json:"numeric_unparseable,omitempty"`
	TimestampUnparseable map[string]int `json:"timestamp_unparseable,omitempty"`
	Clipped              map[string]int `json:"clipped,omitempty"`
	RowsOut              int            `json:"rows_out"`

	// Samples keeps the first few messages per drop reason.
	Samples map[string][]string `json:"samples,omitempty"`
}

func newReport() Report {
	return Report{
		DroppedByReason:      map[string]int{},
		Substitutions:        map[string]int{},
		NumericUnparseable:   map[string]int{},
		TimestampUnparseable: map[string]int{},
		Clipped:              map[string]int{},
		Samples:              map[string][]string{},
	}
}

// Total sums a per-field counter.
func Total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// Lines renders the report as sorted "counter[field]=n" pairs for logging.
func (r Report) Lines() []string {
	var out []string
	add := func(name string, m map[string]int) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s[%s]=%d", name, k, m[k]))
		}
	}
	add("dropped", r.DroppedByReason)
	add("substituted", r.Substitutions)
	add("numeric_unparseable", r.NumericUnparseable)
	add("timestamp_unparseable", r.TimestampUnparseable)
	add("clipped", r.Clipped)
	return out
}

// sampler keeps the first limit messages per bucket and counts the rest.
type sampler struct {
	limit int
	count map[string]int
	first map[string][]string
}

func newSampler(limit int) *sampler {
	return &sampler{limit: limit, count: map[string]int{}, first: map[string][]string{}}
}

func (s *sampler) add(bucket, msg string) {
	if s.count[bucket] < s.limit {
		s.first[bucket] = append(s.first[bucket], msg)
	}
	s.count[bucket]++
}
