package clean

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// Options controls numeric and timestamp coercion.
type Options struct {
	// DecimalSeparator; if 0, auto-detect per value.
	DecimalSeparator rune
	// ThousandsSeparator; if 0, strip common separators that differ from the decimal.
	ThousandsSeparator rune
	// Extra layouts tried before the built-in ones.
	TimeLayouts []string
	// Location for layouts without a zone; defaults to UTC.
	Location *time.Location
}

// DefaultOptions parses "1,200.50" as 1200.5.
func DefaultOptions() Options {
	return Options{DecimalSeparator: '.', ThousandsSeparator: ','}
}

// Plan names the columns to coerce.
type Plan struct {
	Numeric   []string
	Timestamp []string
	// NonNegative columns must hold values >= 0; violating rows are dropped.
	NonNegative []string
}

// PlanFor builds a plan from resolved roles.
func PlanFor(b resolve.Binding) Plan {
	var p Plan
	for _, role := range []resolve.Role{
		resolve.CostTotal, resolve.OrderCount, resolve.Latitude, resolve.Longitude,
		resolve.Weight, resolve.Distance, resolve.Earning, resolve.CPO,
	} {
		if col := b.Col(role); col != "" {
			p.Numeric = append(p.Numeric, col)
		}
	}
	if col := b.Col(resolve.Timestamp); col != "" {
		p.Timestamp = append(p.Timestamp, col)
	}
	if col := b.Col(resolve.Earning); col != "" {
		p.NonNegative = append(p.NonNegative, col)
	}
	return p
}

// Report summarizes what cleaning did.
type Report struct {
	// ParseFailures counts non-empty cells per column that could not be coerced.
	ParseFailures map[string]int
	// Uncoerced lists columns where nothing parsed; they are left untouched.
	Uncoerced []string
	// Negative counts rows dropped for a negative NonNegative value.
	Negative int
}

// Notes renders the report as human-readable lines.
func (r Report) Notes() []string {
	var out []string
	cols := make([]string, 0, len(r.ParseFailures))
	for c := range r.ParseFailures {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		if n := r.ParseFailures[c]; n > 0 {
			out = append(out, fmt.Sprintf("%d value(s) in %s could not be parsed and were treated as missing", n, c))
		}
	}
	for _, c := range r.Uncoerced {
		out = append(out, fmt.Sprintf("column %s has no parseable values; left as text", c))
	}
	if r.Negative > 0 {
		out = append(out, fmt.Sprintf("%d row(s) with negative earnings excluded", r.Negative))
	}
	return out
}

// Cleaner coerces columns. Failures are soft: they never abort the pipeline.
type Cleaner struct {
	opt     Options
	layouts []string
}

func New(opt Options) *Cleaner {
	if opt.Location == nil {
		opt.Location = time.UTC
	}
	return &Cleaner{opt: opt, layouts: append(append([]string(nil), opt.TimeLayouts...), defaultLayouts...)}
}

// Clean returns a new table with plan applied. Applying Clean to its own
// output with the same plan yields an equal table.
func (c *Cleaner) Clean(t *table.Table, plan Plan) (*table.Table, Report) {
	rep := Report{ParseFailures: map[string]int{}}
	out := t
	for _, col := range plan.Numeric {
		out = c.coerce(out, col, &rep, func(v table.Value) (table.Value, bool) {
			switch v.Kind {
			case table.Number:
				return v, true
			case table.String:
				if f, ok := ParseNumber(v.S, c.opt); ok {
					return table.Num(f), true
				}
			}
			return table.Value{}, false
		})
	}
	for _, col := range plan.Timestamp {
		out = c.coerce(out, col, &rep, func(v table.Value) (table.Value, bool) {
			switch v.Kind {
			case table.Time:
				return v, true
			case table.String:
				if ts, ok := c.ParseTime(v.S); ok {
					return table.At(ts), true
				}
			}
			return table.Value{}, false
		})
	}
	for _, col := range plan.NonNegative {
		if !out.Has(col) {
			continue
		}
		before := out.Len()
		out = out.Filter(func(i int) bool {
			v := out.At(i, col)
			return v.Kind != table.Number || v.N >= 0
		})
		rep.Negative += before - out.Len()
	}
	return out, rep
}

func (c *Cleaner) coerce(t *table.Table, col string, rep *Report, conv func(table.Value) (table.Value, bool)) *table.Table {
	if !t.Has(col) {
		return t
	}
	vals := t.Column(col)
	parsed, failed := 0, 0
	for i, v := range vals {
		if v.IsMissing() {
			continue
		}
		nv, ok := conv(v)
		if !ok {
			failed++
		} else {
			parsed++
		}
		vals[i] = nv
	}
	if failed > 0 {
		rep.ParseFailures[col] += failed
	}
	if parsed == 0 && failed > 0 {
		rep.Uncoerced = append(rep.Uncoerced, col)
		return t
	}
	out, err := t.WithColumn(col, vals, t.IsDerived(col))
	if err != nil {
		return t
	}
	return out
}

// Require drops rows missing any of cols and reports how many were dropped.
// Exclusion is scoped to the returned table; the input is untouched.
func Require(t *table.Table, cols ...string) (*table.Table, int) {
	out := t.Filter(func(i int) bool {
		for _, c := range cols {
			if t.At(i, c).IsMissing() {
				return false
			}
		}
		return true
	})
	return out, t.Len() - out.Len()
}

// ParseNumber parses locale-formatted numbers such as "1,200.50", "1.200,50" or "12%".
func ParseNumber(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	for _, sym := range []string{"₹", "$", "€", "£"} {
		raw = strings.ReplaceAll(raw, sym, "")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0 && cpos > dpos:
			dec, thou = ',', '.'
		case cpos >= 0 && dpos >= 0:
			dec, thou = '.', ','
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
		raw = strings.ReplaceAll(raw, " ", "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var defaultLayouts = []string{
	time.RFC3339Nano, time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04",
	"2006-01-02", "2006/01/02", "02/01/2006 15:04", "02/01/2006", "01/02/2006",
	"1/2/2006 15:04", "1/2/2006 15:04:05",
	"January 2, 2006, 3:04 PM", "January 2, 2006, 3:04:05 PM", "January 2, 2006",
	"Jan 2, 2006, 3:04 PM", "Jan 2, 2006", "02-Jan-2006", "Jan-2006",
}

// ParseTime tries each configured layout in order.
func (c *Cleaner) ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range c.layouts {
		if t, err := time.ParseInLocation(l, s, c.opt.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
