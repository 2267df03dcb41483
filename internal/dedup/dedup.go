// Package dedup selects one row per business key: the best-ranked row by the
// rank timestamp, with the input order index breaking exact ties.
//
// RankedSelect expresses the rule as a window-function query over the staging
// table. Resolve applies the same rule in memory with one global sort; the
// pipeline uses it to know how many rows a publish must produce.
package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"behavioretl/internal/schema"
	"behavioretl/internal/staging"
	"behavioretl/internal/storage"
)

// Order picks which row of a key wins.
type Order string

const (
	// Newest keeps the latest rank timestamp; among equal timestamps the
	// later input row wins.
	Newest Order = "newest"
	// Oldest keeps the earliest rank timestamp; among equal timestamps the
	// earlier input row wins.
	Oldest Order = "oldest"
)

// ParseOrder accepts "newest" or "oldest"; empty means Newest.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", Newest:
		return Newest, nil
	case Oldest:
		return Oldest, nil
	default:
		return "", fmt.Errorf("dedup: unknown tiebreak %q (newest, oldest)", s)
	}
}

func (o Order) direction() string {
	if o == Oldest {
		return "ASC"
	}
	return "DESC"
}

// RankColumn is the alias of the row number in RankedSelect.
const RankColumn = "rn"

// RankedSelect returns a SELECT of the variant columns holding one row per
// business key from the staging table, ordered by the key:
//
//	SELECT cols FROM (
//	  SELECT cols, ROW_NUMBER() OVER (PARTITION BY keys ORDER BY rank DIR, ord DIR) AS rn
//	  FROM staging
//	) AS ranked WHERE rn = 1 ORDER BY keys
func RankedSelect(d storage.Dialect, v *schema.Variant, stagingTable string, o Order) string {
	cols := strings.Join(storage.QuoteAll(d, v.Columns()), ", ")
	keys := strings.Join(storage.QuoteAll(d, v.KeyColumns()), ", ")
	dir := o.direction()
	return fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s %s, %s %s) AS %s FROM %s) AS ranked WHERE %s = 1 ORDER BY %s",
		cols,
		cols,
		keys,
		d.Quote(v.RankColumn()), dir,
		d.Quote(staging.OrdColumn), dir,
		d.Quote(RankColumn),
		d.QuoteTable(stagingTable),
		d.Quote(RankColumn),
		keys,
	)
}

// Resolve returns one record per business key, in key order, chosen by the
// same rule as RankedSelect. recs must be validated records.
func Resolve(v *schema.Variant, recs []schema.Record, o Order) []schema.Record {
	if len(recs) == 0 {
		return nil
	}
	var keyIdx []int
	for i, f := range v.Fields {
		if f.BusinessKey {
			keyIdx = append(keyIdx, i)
		}
	}
	rankIdx := v.Index(v.RankColumn())

	sorted := make([]schema.Record, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := compareKey(a, b, keyIdx); c != 0 {
			return c < 0
		}
		c := compareValue(a.Values[rankIdx], b.Values[rankIdx])
		if c == 0 {
			c = compareInt(a.Ord, b.Ord)
		}
		if o == Oldest {
			return c < 0
		}
		return c > 0
	})

	out := make([]schema.Record, 0, len(sorted))
	for i, r := range sorted {
		if i > 0 && compareKey(sorted[i-1], r, keyIdx) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func compareKey(a, b schema.Record, idx []int) int {
	for _, i := range idx {
		if c := compareValue(a.Values[i], b.Values[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compareValue orders two validated values of the same kind.
func compareValue(a, b any) int {
	switch x := a.(type) {
	case int64:
		return compareInt(x, b.(int64))
	case string:
		return strings.Compare(x, b.(string))
	case time.Time:
		return x.Compare(b.(time.Time))
	default:
		panic(fmt.Sprintf("dedup: unsupported value type %T", a))
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
