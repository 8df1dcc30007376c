package table

import (
	"fmt"

	"github.com/google/uuid"
)

// Table is an immutable, ordered set of rows over a variable column set.
// Every transformation returns a new Table and leaves the receiver intact.
type Table struct {
	ID   string
	Name string

	columns []string
	index   map[string]int
	derived map[string]bool
	rows    [][]Value
}

// New builds a table. Short rows are padded with Missing, long rows truncated.
func New(name string, columns []string, rows [][]Value) *Table {
	t := &Table{
		ID:      uuid.NewString(),
		Name:    name,
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		derived: map[string]bool{},
		rows:    make([][]Value, 0, len(rows)),
	}
	for i, c := range t.columns {
		t.index[c] = i
	}
	for _, r := range rows {
		t.rows = append(t.rows, fit(r, len(columns)))
	}
	return t
}

func fit(r []Value, n int) []Value {
	if len(r) == n {
		return r
	}
	out := make([]Value, n)
	copy(out, r)
	return out
}

// derive returns an empty table sharing the receiver's schema.
func (t *Table) derive() *Table {
	d := make(map[string]bool, len(t.derived))
	for k, v := range t.derived {
		d[k] = v
	}
	return &Table{
		ID:      uuid.NewString(),
		Name:    t.Name,
		columns: t.columns,
		index:   t.index,
		derived: d,
	}
}

// MarkDerived returns a copy of t with cols flagged as computed.
func (t *Table) MarkDerived(cols ...string) *Table {
	out := t.derive()
	out.rows = t.rows
	for _, c := range cols {
		if t.Has(c) {
			out.derived[c] = true
		}
	}
	return out
}

// Columns returns the column names in header order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether col exists.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Index returns the position of col.
func (t *Table) Index(col string) (int, bool) {
	i, ok := t.index[col]
	return i, ok
}

// At returns the cell at row i, column col; Missing for unknown columns.
func (t *Table) At(i int, col string) Value {
	j, ok := t.index[col]
	if !ok || i < 0 || i >= len(t.rows) {
		return Value{}
	}
	return t.rows[i][j]
}

// Row returns row i. Callers must not modify it.
func (t *Table) Row(i int) []Value { return t.rows[i] }

// IsDerived reports whether col was computed by this program rather than loaded.
func (t *Table) IsDerived(col string) bool { return t.derived[col] }

// Column returns a copy of every value in col.
func (t *Table) Column(col string) []Value {
	out := make([]Value, len(t.rows))
	j, ok := t.index[col]
	if !ok {
		return out
	}
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.derive()
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// WithColumn adds or replaces col. vals must have one entry per row.
func (t *Table) WithColumn(col string, vals []Value, derived bool) (*Table, error) {
	if len(vals) != len(t.rows) {
		return nil, fmt.Errorf("column %q: %d values for %d rows", col, len(vals), len(t.rows))
	}
	out := t.derive()
	j, exists := t.index[col]
	if !exists {
		out.columns = append(append([]string(nil), t.columns...), col)
		out.index = make(map[string]int, len(out.columns))
		for i, c := range out.columns {
			out.index[c] = i
		}
		j = len(out.columns) - 1
	}
	if derived {
		out.derived[col] = true
	} else {
		delete(out.derived, col)
	}
	out.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		nr := make([]Value, len(out.columns))
		copy(nr, r)
		nr[j] = vals[i]
		out.rows[i] = nr
	}
	return out, nil
}

// MapColumn replaces every cell of col with fn(cell). Unknown columns return t.
func (t *Table) MapColumn(col string, fn func(Value) Value) *Table {
	if !t.Has(col) {
		return t
	}
	vals := t.Column(col)
	for i, v := range vals {
		vals[i] = fn(v)
	}
	out, _ := t.WithColumn(col, vals, t.derived[col])
	return out
}

// Equal compares schema and cells, ignoring identity.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || len(t.columns) != len(o.columns) {
		return false
	}
	for i, c := range t.columns {
		if o.columns[i] != c {
			return false
		}
	}
	for i, r := range t.rows {
		for j, v := range r {
			if !v.Equal(o.rows[i][j]) {
				return false
			}
		}
	}
	return true
}
