package analysis

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/KaramelBytes/lastmile-cli/internal/aggregate"
	"github.com/KaramelBytes/lastmile-cli/internal/clean"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// Dataset kinds.
const (
	Deliveries = "deliveries"
	Pickups    = "pickups"
	Costs      = "costs"
	Trips      = "trips"
)

// Filters narrow the inputs before any section runs. Empty fields match everything.
type Filters struct {
	Hub      string
	Customer string
	// Month uses the Jan-2006 label form.
	Month    string
	Vehicles []string
}

// Options controls analysis behavior.
type Options struct {
	TopN        int
	WeightEdges []float64
	Filters     Filters
}

func DefaultOptions() Options {
	return Options{TopN: 15, WeightEdges: aggregate.DefaultWeightEdges}
}

// Dataset is a cleaned table with its resolved roles.
type Dataset struct {
	Kind    string
	Table   *table.Table
	Binding resolve.Binding
	Clean   clean.Report
}

// Col returns the column bound to role, empty when unresolved.
func (d *Dataset) Col(role resolve.Role) string {
	if d == nil {
		return ""
	}
	return d.Binding.Col(role)
}

// Input holds the tables for one run; any of them may be nil.
type Input struct {
	Deliveries *table.Table
	Pickups    *table.Table
	Costs      *table.Table
	Trips      *table.Table
}

// Analyzer runs dashboard sections over prepared datasets.
type Analyzer struct {
	resolver *resolve.Resolver
	cleaner  *clean.Cleaner
	opt      Options
}

func New(r *resolve.Resolver, c *clean.Cleaner, opt Options) *Analyzer {
	if opt.TopN < 0 {
		opt.TopN = 0
	}
	if len(opt.WeightEdges) == 0 {
		opt.WeightEdges = aggregate.DefaultWeightEdges
	}
	return &Analyzer{resolver: r, cleaner: c, opt: opt}
}

// Prepare resolves roles and cleans t. A nil table yields a nil dataset.
func (a *Analyzer) Prepare(kind string, t *table.Table) *Dataset {
	if t == nil {
		return nil
	}
	b := a.resolver.Bind(t)
	cleaned, rep := a.cleaner.Clean(t, clean.PlanFor(b))
	return &Dataset{Kind: kind, Table: cleaned, Binding: b, Clean: rep}
}

// Run prepares every input, applies filters and renders all sections.
// Sections whose roles cannot be resolved are reported as skipped.
func (a *Analyzer) Run(in Input) *Report {
	rep := &Report{}
	sets := map[string]*Dataset{}
	for _, p := range []struct {
		kind string
		t    *table.Table
	}{{Deliveries, in.Deliveries}, {Pickups, in.Pickups}, {Costs, in.Costs}, {Trips, in.Trips}} {
		ds := a.Prepare(p.kind, p.t)
		if ds == nil {
			continue
		}
		rep.Inputs = append(rep.Inputs, InputSummary{
			Kind: p.kind, Name: p.t.Name, ID: p.t.ID,
			Rows: p.t.Len(), Columns: len(p.t.Columns()), Binding: ds.Binding,
		})
		for _, n := range ds.Clean.Notes() {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: %s", p.kind, n))
		}
		sets[p.kind] = ds
	}

	deliv := a.filterDeliveries(sets[Deliveries], rep)
	pick := sets[Pickups]
	costs := sets[Costs]
	trips := sets[Trips]

	rep.Sections = append(rep.Sections,
		a.summary(deliv),
		a.hubDeliveries(deliv),
		a.customerDeliveries(deliv),
		a.customerHub(deliv),
		a.weightCategories(deliv),
		a.hourly(deliv),
		a.postcodes(deliv),
		a.pickupsByCustomer(pick),
		a.pickupsByHour(pick),
		a.firstMileLinks(pick),
		a.pickupSummary(pick),
		a.driverCosts(costs),
		a.efficientDrivers(costs),
		a.vehicleTopDrivers(costs),
		a.hubCosts(deliv, costs),
		a.customerCosts(deliv, costs),
		a.vehicleCosts(costs),
	)
	rep.Sections = append(rep.Sections, a.earnings(trips)...)
	return rep
}

// filterDeliveries applies the hub and customer filters. The returned dataset
// shares nothing mutable with the input.
func (a *Analyzer) filterDeliveries(d *Dataset, rep *Report) *Dataset {
	if d == nil {
		return nil
	}
	f := a.opt.Filters
	out := *d
	if f.Hub != "" {
		out.Table = filterEq(out.Table, d.Col(resolve.HubID), f.Hub)
		if d.Col(resolve.HubID) == "" {
			rep.Warnings = append(rep.Warnings, "deliveries: hub filter ignored, no hub column")
		}
	}
	if f.Customer != "" {
		out.Table = filterEq(out.Table, d.Col(resolve.CustomerID), f.Customer)
		if d.Col(resolve.CustomerID) == "" {
			rep.Warnings = append(rep.Warnings, "deliveries: customer filter ignored, no customer column")
		}
	}
	return &out
}

// filterEq keeps rows whose col equals want, ignoring case. An empty col keeps everything.
func filterEq(t *table.Table, col, want string) *table.Table {
	if col == "" {
		return t
	}
	return t.Filter(func(i int) bool { return strings.EqualFold(t.At(i, col).Key(), want) })
}

// filterIn keeps rows whose col is one of want, ignoring case.
func filterIn(t *table.Table, col string, want []string) *table.Table {
	if col == "" || len(want) == 0 {
		return t
	}
	set := lo.SliceToMap(want, func(s string) (string, struct{}) { return strings.ToLower(s), struct{}{} })
	return t.Filter(func(i int) bool {
		_, ok := set[strings.ToLower(t.At(i, col).Key())]
		return ok
	})
}

// require resolves roles on d or returns a skipped section.
func (a *Analyzer) require(s *Section, kind string, d *Dataset, roles ...resolve.Role) bool {
	if d == nil {
		s.Skipped = fmt.Sprintf("no %s table loaded", kind)
		return false
	}
	if _, err := a.resolver.Require(d.Table, kind, roles...); err != nil {
		s.Skipped = err.Error()
		return false
	}
	s.Source = d.Table.Name
	return true
}

// fill copies the top rows of res into s.
func (a *Analyzer) fill(s *Section, res *aggregate.Result) { fillTop(s, res, a.opt.TopN) }

// fillTop copies at most n rows of res into s; n <= 0 copies all.
func fillTop(s *Section, res *aggregate.Result, n int) {
	keys := lo.Map(s.Columns, func(c ColumnSpec, _ int) string { return c.Key })
	s.Groups = len(res.Rows)
	for _, row := range res.Top(n) {
		s.Rows = append(s.Rows, SectionRow{
			Label:   row.Key,
			Size:    row.Size,
			Values:  lo.PickByKeys(row.Metrics, keys),
			Missing: row.Missing,
		})
	}
}
