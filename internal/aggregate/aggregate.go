package aggregate

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/KaramelBytes/lastmile-cli/internal/metrics"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// Op is an aggregation operator.
type Op string

const (
	OpSum     Op = "sum"
	OpMean    Op = "mean"
	OpCount   Op = "count"
	OpNUnique Op = "nunique"
	OpMin     Op = "min"
	OpMax     Op = "max"
)

// Unknown labels the group of rows whose grouping value is missing.
const Unknown = "unknown"

// Metric computes one output column from a source column.
type Metric struct {
	Name   string
	Column string
	Op     Op
}

func Sum(name, col string) Metric     { return Metric{Name: name, Column: col, Op: OpSum} }
func Mean(name, col string) Metric    { return Metric{Name: name, Column: col, Op: OpMean} }
func Count(name, col string) Metric   { return Metric{Name: name, Column: col, Op: OpCount} }
func NUnique(name, col string) Metric { return Metric{Name: name, Column: col, Op: OpNUnique} }
func Min(name, col string) Metric     { return Metric{Name: name, Column: col, Op: OpMin} }
func Max(name, col string) Metric     { return Metric{Name: name, Column: col, Op: OpMax} }

// Row is one group of the result.
type Row struct {
	Key     string
	Parts   []string
	Size    int
	Metrics map[string]metrics.Value
	// Missing is set when any grouping value was missing; such parts read Unknown.
	Missing bool

	seq int
}

// Get returns the named metric, Undefined if absent.
func (r Row) Get(name string) metrics.Value { return r.Metrics[name] }

// Result is a per-group summary table.
type Result struct {
	GroupBy []string
	Metrics []string
	Rows    []Row
}

// missingPart stands in for a missing grouping value inside group keys, so a
// literal "unknown" value never shares a group with missing ones.
const missingPart = "\x00"

// KeySep joins composite keys.
const KeySep = " | "

type acc struct {
	row    *Row
	sum    map[string]float64
	n      map[string]int
	min    map[string]float64
	max    map[string]float64
	unique map[string]map[string]struct{}
}

// Aggregate groups t by groupCol.
func Aggregate(t *table.Table, groupCol string, ms ...Metric) *Result {
	return AggregateBy(t, []string{groupCol}, ms...)
}

// AggregateBy groups t by the raw values of cols. Missing values group under Unknown.
// Numeric operators skip cells that are not numbers; Count counts non-missing cells.
// With no cols the whole table is one group, present even when t is empty.
func AggregateBy(t *table.Table, cols []string, ms ...Metric) *Result {
	res := &Result{GroupBy: append([]string(nil), cols...), Metrics: lo.Map(ms, func(m Metric, _ int) string { return m.Name })}
	groups := map[string]*acc{}
	var order []string
	group := func(gk string, parts []string, missing bool) *acc {
		a, ok := groups[gk]
		if !ok {
			a = &acc{
				row: &Row{Key: strings.Join(parts, KeySep), Parts: parts, Missing: missing, seq: len(order)},
				sum: map[string]float64{}, n: map[string]int{},
				min: map[string]float64{}, max: map[string]float64{},
				unique: map[string]map[string]struct{}{},
			}
			groups[gk] = a
			order = append(order, gk)
		}
		return a
	}
	if len(cols) == 0 {
		group("", []string{}, false)
	}
	for i := 0; i < t.Len(); i++ {
		parts := make([]string, len(cols))
		internal := make([]string, len(cols))
		missing := false
		for j, c := range cols {
			v := t.At(i, c)
			if v.IsMissing() {
				parts[j], internal[j] = Unknown, missingPart
				missing = true
			} else {
				parts[j] = v.Key()
				internal[j] = parts[j]
			}
		}
		a := group(strings.Join(internal, KeySep), parts, missing)
		a.row.Size++
		for _, m := range ms {
			v := t.At(i, m.Column)
			switch m.Op {
			case OpCount:
				if !v.IsMissing() {
					a.n[m.Name]++
				}
			case OpNUnique:
				if v.IsMissing() {
					continue
				}
				if a.unique[m.Name] == nil {
					a.unique[m.Name] = map[string]struct{}{}
				}
				a.unique[m.Name][v.Key()] = struct{}{}
			default:
				if v.Kind != table.Number {
					continue
				}
				if a.n[m.Name] == 0 || v.N < a.min[m.Name] {
					a.min[m.Name] = v.N
				}
				if a.n[m.Name] == 0 || v.N > a.max[m.Name] {
					a.max[m.Name] = v.N
				}
				a.sum[m.Name] += v.N
				a.n[m.Name]++
			}
		}
	}
	for _, key := range order {
		a := groups[key]
		a.row.Metrics = make(map[string]metrics.Value, len(ms))
		for _, m := range ms {
			a.row.Metrics[m.Name] = a.finish(m)
		}
		res.Rows = append(res.Rows, *a.row)
	}
	return res
}

func (a *acc) finish(m Metric) metrics.Value {
	n := a.n[m.Name]
	switch m.Op {
	case OpSum:
		return metrics.Of(a.sum[m.Name])
	case OpMean:
		return metrics.Ratio(metrics.Of(a.sum[m.Name]), metrics.Of(float64(n)))
	case OpCount:
		return metrics.Of(float64(n))
	case OpNUnique:
		return metrics.Of(float64(len(a.unique[m.Name])))
	case OpMin:
		if n == 0 {
			return metrics.Undefined
		}
		return metrics.Of(a.min[m.Name])
	case OpMax:
		if n == 0 {
			return metrics.Undefined
		}
		return metrics.Of(a.max[m.Name])
	}
	return metrics.Undefined
}

// Derive adds a computed metric to every row.
func (r *Result) Derive(name string, fn func(Row) metrics.Value) *Result {
	for i := range r.Rows {
		r.Rows[i].Metrics[name] = fn(r.Rows[i])
	}
	if !lo.Contains(r.Metrics, name) {
		r.Metrics = append(r.Metrics, name)
	}
	return r
}

// SortBy orders rows by metric. Undefined values sort last; ties keep first-seen order.
func (r *Result) SortBy(name string, desc bool) *Result {
	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, aok := r.Rows[i].Get(name).Float()
		b, bok := r.Rows[j].Get(name).Float()
		switch {
		case aok != bok:
			return aok
		case !aok || a == b:
			return r.Rows[i].seq < r.Rows[j].seq
		case desc:
			return a > b
		default:
			return a < b
		}
	})
	return r
}

// SortByKey orders rows by key using less. Groups with a missing value always sort last.
func (r *Result) SortByKey(less func(a, b string) bool) *Result {
	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.Missing != b.Missing {
			return b.Missing
		}
		return less(a.Key, b.Key)
	})
	return r
}

// SortByPart orders rows by Parts[part] using less; ties keep their current order.
// Groups with a missing value always sort last.
func (r *Result) SortByPart(part int, less func(a, b string) bool) *Result {
	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.Missing != b.Missing {
			return b.Missing
		}
		if part >= len(a.Parts) || part >= len(b.Parts) {
			return false
		}
		return less(a.Parts[part], b.Parts[part])
	})
	return r
}

// TopPer keeps at most n rows for each distinct value of Parts[part], preserving order.
func (r *Result) TopPer(part, n int) *Result {
	if n <= 0 {
		return r
	}
	seen := map[string]int{}
	r.Rows = lo.Filter(r.Rows, func(row Row, _ int) bool {
		k := ""
		if part < len(row.Parts) {
			k = row.Parts[part]
		}
		seen[k]++
		return seen[k] <= n
	})
	return r
}

// Top returns at most n rows; n <= 0 returns all.
func (r *Result) Top(n int) []Row {
	if n <= 0 || n >= len(r.Rows) {
		return r.Rows
	}
	return r.Rows[:n]
}

// Find returns the row with key.
func (r *Result) Find(key string) (Row, bool) {
	return lo.Find(r.Rows, func(row Row) bool { return row.Key == key })
}

// Total is the number of input rows across every group.
func (r *Result) Total() int {
	return lo.SumBy(r.Rows, func(row Row) int { return row.Size })
}
