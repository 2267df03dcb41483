package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
makeCSV builds a CSV document in-memory with the given header and rows.
It uses encoding/csv to ensure proper quoting and escaping.
*/
func makeCSV(delim rune, header []string, rows [][]string) []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	w.Comma = delim
	if header != nil {
		_ = w.Write(header)
	}
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return b.Bytes()
}

func TestReadHeaderAndRecords(t *testing.T) {
	t.Parallel()

	data := makeCSV(',', []string{"\uFEFFIduser", " start watching ", "Device Id", "Content Name"}, [][]string{
		{"7", "2024-01-01 10:00:00", "d1", "X"},
		{"7", "2024-01-01 12:00:00", "d1", "X, the sequel"},
	})
	ex, err := Read(context.Background(), bytes.NewReader(data), Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Iduser", "start watching", "Device Id", "Content Name"}, ex.Header)
	require.Len(t, ex.Records, 2)
	assert.Equal(t, 2, ex.Records[0].Line)
	assert.Equal(t, 3, ex.Records[1].Line)
	assert.Equal(t, "X, the sequel", ex.Records[1].Cells[3])
	assert.Zero(t, ex.ParseErrors)
}

func TestReadEmptyInput(t *testing.T) {
	t.Parallel()

	ex, err := Read(context.Background(), strings.NewReader(""), Options{}, nil)
	require.NoError(t, err)
	assert.Nil(t, ex.Header)
	assert.Empty(t, ex.Records)
}

func TestReadHeaderOnly(t *testing.T) {
	t.Parallel()

	ex, err := Read(context.Background(), strings.NewReader("Iduser,Device Id\n"), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Iduser", "Device Id"}, ex.Header)
	assert.Empty(t, ex.Records)
}

func TestReadShortRowsAndDelimiter(t *testing.T) {
	t.Parallel()

	data := makeCSV(';', []string{"a", "b", "c"}, [][]string{{"1", "2"}, {"1", "2", "3", "4"}})
	ex, err := Read(context.Background(), bytes.NewReader(data), Options{Comma: ';'}, nil)
	require.NoError(t, err)
	require.Len(t, ex.Records, 2)

	_, ok := ex.Records[0].Cell(2)
	assert.False(t, ok, "short row should report the third cell absent")
	v, ok := ex.Records[1].Cell(3)
	assert.True(t, ok)
	assert.Equal(t, "4", v)
}

func TestReadSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	in := "a,b\n1,\"unterminated\n"
	var lines []int
	ex, err := Read(context.Background(), strings.NewReader(in), Options{}, func(line int, err error) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ex.ParseErrors)
	assert.Equal(t, []int{2}, lines)
	assert.Empty(t, ex.Records)
}

func TestReadLazyQuotes(t *testing.T) {
	t.Parallel()

	in := "a,b\n1,say \"hi\" there\n"
	ex, err := Read(context.Background(), strings.NewReader(in), Options{LazyQuotes: true}, nil)
	require.NoError(t, err)
	require.Len(t, ex.Records, 1)
	assert.Equal(t, `say "hi" there`, ex.Records[0].Cells[1])

	ex, err = Read(context.Background(), strings.NewReader(in), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.ParseErrors)
}

func TestReadHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Read(ctx, strings.NewReader("a\n1\n"), Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripHeaderBOM(t *testing.T) {
	t.Parallel()

	h := StripHeaderBOM([]string{"\uFEFFid", "name"})
	assert.Equal(t, "id", h[0])
	assert.Empty(t, StripHeaderBOM(nil))
}
