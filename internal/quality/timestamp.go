package quality

import (
	"strings"
	"time"
)

// autoLayouts are tried in order when the configured format is "auto".
// Layouts without a zone are read as UTC.
var autoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

// timeParser parses timestamps under one configured format.
type timeParser struct {
	layouts []string
}

func newTimeParser(format string) timeParser {
	f := strings.TrimSpace(format)
	if f == "" || strings.EqualFold(f, "auto") {
		return timeParser{layouts: autoLayouts}
	}
	return timeParser{layouts: []string{f}}
}

func (p timeParser) parse(s string) (time.Time, bool) {
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
