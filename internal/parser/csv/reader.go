// Package csv reads a delimited extract with a header row into raw records.
// Rows the reader cannot parse are reported through a callback and skipped;
// only failures of the underlying stream abort the read.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Options configures the reader. Zero values select the defaults.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune
	// LazyQuotes tolerates bare quotes inside unquoted fields.
	LazyQuotes bool
}

// RawRecord is one data row as read from the extract.
type RawRecord struct {
	// Line is the 1-based line the record starts on.
	Line  int
	Cells []string
}

// Cell returns the i-th cell and whether the row carried it.
func (r RawRecord) Cell(i int) (string, bool) {
	if i < 0 || i >= len(r.Cells) {
		return "", false
	}
	return r.Cells[i], true
}

// Extract is a fully read source.
type Extract struct {
	// Header is nil for an empty input.
	Header  []string
	Records []RawRecord
	// ParseErrors counts rows skipped because they could not be parsed.
	ParseErrors int
}

// Read consumes src and returns its header and records. onErr, when set,
// receives each skipped row with its line number. src is not closed.
func Read(ctx context.Context, src io.Reader, opt Options, onErr func(line int, err error)) (*Extract, error) {
	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	// Width is not enforced here; short rows yield absent cells downstream.
	cr.FieldsPerRecord = -1

	ex := &Extract{}
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ex, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range hdr {
		hdr[i] = strings.TrimSpace(h)
	}
	ex.Header = StripHeaderBOM(hdr)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ex, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("read csv: %w", err)
			}
			ex.ParseErrors++
			if onErr != nil {
				onErr(pe.StartLine, fmt.Errorf("parse: %w", err))
			}
			continue
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		ex.Records = append(ex.Records, RawRecord{Line: line, Cells: rec})
	}
}

// isBlank reports a row whose only cell is empty, which encoding/csv returns
// for whitespace-only lines.
func isBlank(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}
