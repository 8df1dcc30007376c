package aggregate

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// DefaultWeightEdges are the upper bounds (kg) of the right-open weight categories.
var DefaultWeightEdges = []float64{1, 5, 10, 20, 50, 100}

// WeightLabels names the buckets produced by edges: 0-1kg, 1-5kg, ..., 100kg+.
func WeightLabels(edges []float64) []string {
	out := make([]string, 0, len(edges)+1)
	low := 0.0
	for _, e := range edges {
		out = append(out, fmt.Sprintf("%s-%skg", fmtNum(low), fmtNum(e)))
		low = e
	}
	return append(out, fmtNum(low)+"kg+")
}

func fmtNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// WeightBucket adds derived column out holding the weight category of col.
// Buckets are [0,e1), [e1,e2), ..., [eN,inf). Negative or non-numeric weights are missing.
func WeightBucket(t *table.Table, col, out string, edges []float64) (*table.Table, error) {
	labels := WeightLabels(edges)
	vals := t.Column(col)
	for i, v := range vals {
		if v.Kind != table.Number || v.N < 0 || math.IsNaN(v.N) {
			vals[i] = table.Value{}
			continue
		}
		idx := len(edges)
		for k, e := range edges {
			if v.N < e {
				idx = k
				break
			}
		}
		vals[i] = table.Str(labels[idx])
	}
	return t.WithColumn(out, vals, true)
}

// HourOfDay adds derived column out with the hour (0-23) of timestamp column col.
func HourOfDay(t *table.Table, col, out string) (*table.Table, error) {
	return deriveTime(t, col, out, func(ts time.Time) table.Value { return table.Num(float64(ts.Hour())) })
}

// MonthLayout formats month labels, e.g. Apr-2025.
const MonthLayout = "Jan-2006"

// Month adds derived column out with the month label of timestamp column col.
func Month(t *table.Table, col, out string) (*table.Table, error) {
	return deriveTime(t, col, out, func(ts time.Time) table.Value { return table.Str(ts.Format(MonthLayout)) })
}

func deriveTime(t *table.Table, col, out string, fn func(time.Time) table.Value) (*table.Table, error) {
	vals := t.Column(col)
	for i, v := range vals {
		if v.Kind != table.Time {
			vals[i] = table.Value{}
			continue
		}
		vals[i] = fn(v.T)
	}
	return t.WithColumn(out, vals, true)
}

// LabelOrder sorts keys by their position in labels; unlisted keys go last.
func LabelOrder(labels []string) func(a, b string) bool {
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	rank := func(s string) int {
		if p, ok := pos[s]; ok {
			return p
		}
		return len(labels)
	}
	return func(a, b string) bool { return rank(a) < rank(b) }
}

// NumericOrder sorts numeric keys ascending, falling back to lexical order.
func NumericOrder(a, b string) bool {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}

// MonthOrder sorts month labels chronologically.
func MonthOrder(a, b string) bool {
	x, errA := time.Parse(MonthLayout, a)
	y, errB := time.Parse(MonthLayout, b)
	if errA != nil || errB != nil {
		return a < b
	}
	return x.Before(y)
}
