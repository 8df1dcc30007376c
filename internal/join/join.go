package join

import (
	"strconv"
	"strings"

	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// Entity is the hub or customer a driver is most often associated with.
type Entity struct {
	Driver   table.Value
	Primary  table.Value
	Distinct int
	Rows     int
}

// EntityMap maps a driver to its primary entity. It is rebuilt for every analysis.
type EntityMap struct {
	order   []string
	entries map[string]*Entity
	counts  map[string]map[string]int
	seen    map[string][]string
}

// BuildEntityMap groups source rows by driver and picks the mode of entityCol per driver.
// Ties go to the value seen first in row order. Rows with a missing driver are ignored;
// missing entity values count toward Rows but never become Primary.
func BuildEntityMap(src *table.Table, driverCol, entityCol string) *EntityMap {
	m := &EntityMap{entries: map[string]*Entity{}, counts: map[string]map[string]int{}, seen: map[string][]string{}}
	firstSeen := m.seen
	values := map[string]table.Value{}
	for i := 0; i < src.Len(); i++ {
		d := src.At(i, driverCol)
		if d.IsMissing() {
			continue
		}
		dk := Key(d)
		e, ok := m.entries[dk]
		if !ok {
			e = &Entity{Driver: d}
			m.entries[dk] = e
			m.counts[dk] = map[string]int{}
			m.order = append(m.order, dk)
		}
		e.Rows++
		ev := src.At(i, entityCol)
		if ev.IsMissing() {
			continue
		}
		ek := ev.Key()
		if _, seen := m.counts[dk][ek]; !seen {
			firstSeen[dk] = append(firstSeen[dk], ek)
			values[dk+"\x00"+ek] = ev
		}
		m.counts[dk][ek]++
	}
	for _, dk := range m.order {
		e := m.entries[dk]
		e.Distinct = len(firstSeen[dk])
		best := -1
		for _, ek := range firstSeen[dk] {
			if c := m.counts[dk][ek]; c > best {
				best = c
				e.Primary = values[dk+"\x00"+ek]
			}
		}
	}
	return m
}

// Lookup returns the entity attributed to driver.
func (m *EntityMap) Lookup(driver table.Value) (Entity, bool) {
	e, ok := m.entries[Key(driver)]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Len is the number of drivers seen.
func (m *EntityMap) Len() int { return len(m.order) }

// Count is how many rows paired driver with entity.
func (m *EntityMap) Count(driver, entity table.Value) int {
	return m.counts[Key(driver)][entity.Key()]
}

// Entities lists the distinct entity keys observed for driver in first-seen order.
func (m *EntityMap) Entities(driver table.Value) []string {
	return append([]string(nil), m.seen[Key(driver)]...)
}

// Table renders the map as driverCol, primaryCol, countCol. The last two are derived.
func (m *EntityMap) Table(name, driverCol, primaryCol, countCol string) *table.Table {
	rows := make([][]table.Value, 0, len(m.order))
	for _, dk := range m.order {
		e := m.entries[dk]
		rows = append(rows, []table.Value{e.Driver, e.Primary, table.Num(float64(e.Distinct))})
	}
	return table.New(name, []string{driverCol, primaryCol, countCol}, rows).MarkDerived(primaryCol, countCol)
}

// Key normalizes a join key: text that reads as a number compares equal to that number.
func Key(v table.Value) string {
	if v.Kind == table.String {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64); err == nil {
			return table.Num(f).Key()
		}
	}
	return v.Key()
}

// Stats describes a join outcome.
type Stats struct {
	Left      int
	Matched   int
	Unmatched int
	// Mismatch is set when the key columns hold different kinds; keys were compared
	// by their normalized form.
	Mismatch  bool
	LeftKind  table.Kind
	RightKind table.Kind
}

// RightSuffix is appended to right-side columns that collide with left ones.
const RightSuffix = "_right"

// Left performs a left-outer join. Every left row survives; a left row matching
// several right rows is repeated once per match; unmatched rows get Missing for every
// right-side column. When both keys share a name the right key is not repeated.
func Left(left, right *table.Table, leftKey, rightKey string) (*table.Table, Stats) {
	st := Stats{Left: left.Len(), LeftKind: dominantKind(left, leftKey), RightKind: dominantKind(right, rightKey)}
	st.Mismatch = st.LeftKind != table.Missing && st.RightKind != table.Missing && st.LeftKind != st.RightKind

	index := map[string][]int{}
	for i := 0; i < right.Len(); i++ {
		v := right.At(i, rightKey)
		if v.IsMissing() {
			continue
		}
		k := Key(v)
		index[k] = append(index[k], i)
	}

	lcols := left.Columns()
	taken := map[string]bool{}
	for _, c := range lcols {
		taken[c] = true
	}
	var rcols, rnames []string
	for _, c := range right.Columns() {
		if c == rightKey && rightKey == leftKey {
			continue
		}
		name := c
		for taken[name] {
			name += RightSuffix
		}
		taken[name] = true
		rcols = append(rcols, c)
		rnames = append(rnames, name)
	}

	var rows [][]table.Value
	for i := 0; i < left.Len(); i++ {
		base := left.Row(i)
		var hits []int
		if v := left.At(i, leftKey); !v.IsMissing() {
			hits = index[Key(v)]
		}
		if len(hits) == 0 {
			st.Unmatched++
			row := make([]table.Value, len(lcols)+len(rcols))
			copy(row, base)
			rows = append(rows, row)
			continue
		}
		st.Matched++
		for _, j := range hits {
			row := make([]table.Value, 0, len(lcols)+len(rcols))
			row = append(row, base...)
			for _, c := range rcols {
				row = append(row, right.At(j, c))
			}
			rows = append(rows, row)
		}
	}

	out := table.New(left.Name, append(lcols, rnames...), rows)
	var derived []string
	for _, c := range lcols {
		if left.IsDerived(c) {
			derived = append(derived, c)
		}
	}
	for k, c := range rcols {
		if right.IsDerived(c) {
			derived = append(derived, rnames[k])
		}
	}
	return out.MarkDerived(derived...), st
}

func dominantKind(t *table.Table, col string) table.Kind {
	for i := 0; i < t.Len(); i++ {
		v := t.At(i, col)
		if v.IsMissing() {
			continue
		}
		if v.Kind == table.String {
			if _, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64); err == nil {
				return table.Number
			}
		}
		return v.Kind
	}
	return table.Missing
}
