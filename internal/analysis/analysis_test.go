package analysis

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/lastmile-cli/internal/clean"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

var deliveryRows = []string{
	"number,hub,driver_id,customer,weight,kms,created_date,hub_lat",
	"o1,A,d1,acme,2,4,\"March 1, 2025, 9:10 AM\",12.9",
	"o2,A,d1,acme,3,6,\"March 1, 2025, 9:40 AM\",12.9",
	"o3,B,d1,zen,12,10,\"March 2, 2025, 4:21 PM\",13.1",
	"o4,B,d2,zen,0.5,1,\"April 3, 2025, 4:05 PM\",13.1",
	"o5,,d3,acme,,,,",
}

var costRows = []string{
	"driver_id,driver_name,vehicle_model,total_cost,total_orders,cpo",
	"d1,Ravi,EV-3W,\"1,200.50\",50,24",
	"d2,Mona,EV-3W,300,0,",
	"d4,Ajay,Bike,90,9,10",
}

var pickupRows = []string{
	"customer,customerlat,customerlong,microwarehouse,microwarehouselat,microwarehouselong,num_orders,pickedup_at",
	"acme,12.9,77.6,MW1,12.8,77.5,3,\"March 1, 2025, 9:10 AM\"",
	"acme,12.9,77.6,MW1,12.8,77.5,2,\"March 1, 2025, 9:50 AM\"",
	"acme,12.9,77.6,MW2,13.0,77.7,1,\"March 1, 2025, 2:00 PM\"",
	"zen,13.1,77.4,MW2,13.0,77.7,4,\"March 2, 2025, 9:05 AM\"",
}

var tripRows = []string{
	"actual_end_time,lat,long,per_trip_earning,vehicle_model",
	"\"March 1, 2025, 4:21 PM\",12.9,77.6,\"1,000\",EV-3W",
	"\"March 9, 2025, 6:00 PM\",12.9,77.6,500,EV-3W",
	"\"April 2, 2025, 8:00 AM\",12.9,77.6,300,Bike",
	"\"April 2, 2025, 9:00 AM\",12.9,77.6,-50,Bike",
	"\"April 5, 2025, 9:00 AM\",,77.6,200,Bike",
}

func mustCSV(t *testing.T, name string, rows []string) *table.Table {
	t.Helper()
	tb, err := table.ReadCSV(strings.NewReader(strings.Join(rows, "\n")), name, table.LoadOptions{})
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return tb
}

func newAnalyzer(opt Options) *Analyzer {
	return New(resolve.New(nil), clean.New(clean.DefaultOptions()), opt)
}

func mustSection(t *testing.T, rep *Report, id string) Section {
	t.Helper()
	s, ok := rep.Section(id)
	if !ok {
		t.Fatalf("section %s not in report", id)
	}
	if !s.Ran() {
		t.Fatalf("section %s skipped: %s", id, s.Skipped)
	}
	return s
}

func rowByLabel(t *testing.T, s Section, label string) SectionRow {
	t.Helper()
	for _, r := range s.Rows {
		if r.Label == label {
			return r
		}
	}
	t.Fatalf("section %s has no row %q", s.ID, label)
	return SectionRow{}
}

func value(t *testing.T, r SectionRow, key string) float64 {
	t.Helper()
	f, ok := r.Values[key].Float()
	if !ok {
		t.Fatalf("row %s: %s undefined", r.Label, key)
	}
	return f
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestRunFullDashboard(t *testing.T) {
	a := newAnalyzer(DefaultOptions())
	rep := a.Run(Input{
		Deliveries: mustCSV(t, "deliveries.csv", deliveryRows),
		Costs:      mustCSV(t, "costs.csv", costRows),
		Trips:      mustCSV(t, "trips.csv", tripRows),
	})

	sum := mustSection(t, rep, SectionSummary)
	all := rowByLabel(t, sum, "all")
	if value(t, all, "deliveries") != 5 || value(t, all, "hubs") != 2 || value(t, all, "drivers") != 3 {
		t.Fatalf("summary: %+v", all.Values)
	}
	if value(t, all, "total_weight") != 17.5 || value(t, all, "avg_distance") != 5.25 ||
		value(t, all, "min_distance") != 1 || value(t, all, "max_distance") != 10 {
		t.Fatalf("summary weight and distance: %+v", all.Values)
	}

	ch := mustSection(t, rep, SectionCustomerHub)
	if got := value(t, rowByLabel(t, ch, "zen | B"), "total_weight"); got != 12.5 {
		t.Fatalf("zen | B weight = %v", got)
	}
	if got := value(t, rowByLabel(t, ch, "acme | A"), "deliveries"); got != 2 {
		t.Fatalf("acme | A deliveries = %v", got)
	}

	hubs := mustSection(t, rep, SectionHubDeliveries)
	if got := value(t, rowByLabel(t, hubs, "B"), "total_weight"); got != 12.5 {
		t.Fatalf("hub B weight: %v", got)
	}
	if hubs.Rows[len(hubs.Rows)-1].Label != "unknown" {
		t.Fatalf("expected unknown group last, got %+v", hubs.Rows)
	}

	cust := mustSection(t, rep, SectionCustomerDeliveries)
	zen := rowByLabel(t, cust, "zen")
	if value(t, zen, "delivery_count") != 2 || !approx(value(t, zen, "kg_per_km"), 12.5/11) {
		t.Fatalf("zen: %+v", zen.Values)
	}

	weights := mustSection(t, rep, SectionWeightCategories)
	if weights.Rows[0].Label != "0-1kg" || weights.Rows[len(weights.Rows)-1].Label != "unknown" {
		t.Fatalf("weight order: %+v", weights.Rows)
	}

	hours := mustSection(t, rep, SectionHourly)
	if hours.Rows[0].Label != "9" || hours.Rows[0].Size != 2 {
		t.Fatalf("hours: %+v", hours.Rows)
	}

	if s, _ := rep.Section(SectionPickupsByCustomer); s.Ran() {
		t.Fatalf("pickups should be skipped without a pickups table")
	}
}

func TestDriverCostPerOrder(t *testing.T) {
	rep := newAnalyzer(DefaultOptions()).Run(Input{Costs: mustCSV(t, "costs.csv", costRows)})
	s := mustSection(t, rep, SectionDriverCosts)
	if s.Rows[0].Label != "d1 | Ravi" {
		t.Fatalf("costs not sorted desc: %+v", s.Rows)
	}
	d1 := s.Rows[0]
	if got := value(t, d1, "total_cost"); got != 1200.50 {
		t.Fatalf("total_cost = %v", got)
	}
	if got := value(t, d1, "cost_per_order"); !approx(got, 24.01) {
		t.Fatalf("cost_per_order = %v", got)
	}
	if d2 := rowByLabel(t, s, "d2 | Mona"); d2.Values["cost_per_order"].Defined() {
		t.Fatalf("zero orders should leave cost_per_order undefined")
	}
}

func TestPickupSections(t *testing.T) {
	rep := newAnalyzer(DefaultOptions()).Run(Input{Pickups: mustCSV(t, "pickups.csv", pickupRows)})
	if len(rep.Inputs) != 1 {
		t.Fatalf("inputs: %+v", rep.Inputs)
	}
	b := rep.Inputs[0].Binding
	if b.Col(resolve.HubID) != "microwarehouse" || b.Col(resolve.CustomerID) != "customer" || b.Col(resolve.OrderCount) != "num_orders" {
		t.Fatalf("binding: %v", b)
	}

	pc := mustSection(t, rep, SectionPickupsByCustomer)
	if pc.Rows[0].Label != "acme" || pc.Rows[0].Size != 3 {
		t.Fatalf("pickups by customer: %+v", pc.Rows)
	}
	if value(t, pc.Rows[0], "orders") != 6 || value(t, rowByLabel(t, pc, "zen"), "orders") != 4 {
		t.Fatalf("orders must be summed per customer: %+v", pc.Rows)
	}

	ph := mustSection(t, rep, SectionPickupsByHour)
	if len(ph.Rows) != 2 || ph.Rows[0].Label != "9" || value(t, ph.Rows[0], "pickups") != 3 || ph.Rows[1].Label != "14" {
		t.Fatalf("pickups by hour: %+v", ph.Rows)
	}

	links := mustSection(t, rep, SectionFirstMileLinks)
	want := map[string]float64{"acme | MW1": 2, "acme | MW2": 1, "zen | MW2": 1}
	if len(links.Rows) != len(want) || links.Rows[0].Label != "acme | MW1" {
		t.Fatalf("links: %+v", links.Rows)
	}
	for label, n := range want {
		if got := value(t, rowByLabel(t, links, label), "pickups"); got != n {
			t.Fatalf("%s = %v, want %v", label, got, n)
		}
	}

	all := rowByLabel(t, mustSection(t, rep, SectionPickupSummary), "all")
	if value(t, all, "pickups") != 4 || value(t, all, "customers") != 2 ||
		value(t, all, "avg_pickups_per_customer") != 2 || value(t, all, "total_orders") != 10 {
		t.Fatalf("pickup summary: %+v", all.Values)
	}
}

func TestPickupSummaryCountsRowsWithoutOrderColumn(t *testing.T) {
	rep := newAnalyzer(DefaultOptions()).Run(Input{Pickups: mustCSV(t, "pickups.csv", []string{"customer,microwarehouse", "acme,MW1", "acme,MW2"})})
	all := rowByLabel(t, mustSection(t, rep, SectionPickupSummary), "all")
	if value(t, all, "total_orders") != 2 || value(t, all, "avg_pickups_per_customer") != 2 {
		t.Fatalf("pickup summary: %+v", all.Values)
	}
}

func TestDriverEfficiencyRankings(t *testing.T) {
	rows := append(append([]string(nil), costRows...), "d5,Sita,EV-3W,100,10,", "d6,Arun,EV-3W,100,1,")
	rep := newAnalyzer(DefaultOptions()).Run(Input{Costs: mustCSV(t, "costs.csv", rows)})

	eff := mustSection(t, rep, SectionEfficientDrivers)
	if eff.Rows[0].Label != "d4 | Ajay" || eff.Rows[len(eff.Rows)-1].Label != "d2 | Mona" {
		t.Fatalf("efficient drivers: %+v", eff.Rows)
	}
	if got := value(t, eff.Rows[0], "orders_per_cost"); !approx(got, 0.1) {
		t.Fatalf("orders_per_cost = %v", got)
	}

	top := mustSection(t, rep, SectionVehicleTopDrivers)
	var labels []string
	for _, r := range top.Rows {
		labels = append(labels, r.Label)
	}
	want := []string{"Bike | d4 | Ajay", "EV-3W | d5 | Sita", "EV-3W | d1 | Ravi", "EV-3W | d6 | Arun"}
	if strings.Join(labels, ",") != strings.Join(want, ",") {
		t.Fatalf("top drivers per vehicle = %v, want %v", labels, want)
	}
}

func TestLiteralUnknownHubIsItsOwnGroup(t *testing.T) {
	rep := newAnalyzer(DefaultOptions()).Run(Input{Deliveries: mustCSV(t, "deliveries.csv", []string{"number,hub", "o1,unknown", "o2,", "o3,unknown"})})
	hubs := mustSection(t, rep, SectionHubDeliveries)
	if len(hubs.Rows) != 2 {
		t.Fatalf("hubs: %+v", hubs.Rows)
	}
	if hubs.Rows[0].Size != 2 || hubs.Rows[0].Missing || !hubs.Rows[1].Missing || hubs.Rows[1].Size != 1 {
		t.Fatalf("literal and missing hubs must stay apart: %+v", hubs.Rows)
	}
	b, err := json.Marshal(hubs.Rows[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"missing":true`) {
		t.Fatalf("missing group not flagged in JSON: %s", b)
	}
}

func TestSummaryOnEmptyFilterResult(t *testing.T) {
	opt := DefaultOptions()
	opt.Filters.Hub = "Z"
	rep := newAnalyzer(opt).Run(Input{Deliveries: mustCSV(t, "deliveries.csv", deliveryRows)})
	sum := mustSection(t, rep, SectionSummary)
	all := rowByLabel(t, sum, "all")
	if value(t, all, "deliveries") != 0 || value(t, all, "hubs") != 0 {
		t.Fatalf("summary: %+v", all.Values)
	}
	if all.Values["avg_distance"].Defined() {
		t.Fatalf("avg distance over no deliveries must be undefined")
	}
	if md := rep.Markdown(); !strings.Contains(md, "- all (n=0): deliveries 0") {
		t.Fatalf("markdown:\n%s", md)
	}
}

func TestHubCostAttribution(t *testing.T) {
	rep := newAnalyzer(DefaultOptions()).Run(Input{
		Deliveries: mustCSV(t, "deliveries.csv", deliveryRows),
		Costs:      mustCSV(t, "costs.csv", costRows),
	})
	s := mustSection(t, rep, SectionHubCosts)

	// d1 delivers mostly from A, d2 only from B, d4 never appears in deliveries.
	a := rowByLabel(t, s, "A")
	if value(t, a, "total_cost") != 1200.5 || value(t, a, "driver_count") != 1 {
		t.Fatalf("hub A: %+v", a.Values)
	}
	b := rowByLabel(t, s, "B")
	if b.Values["cost_per_order"].Defined() {
		t.Fatalf("hub B has zero orders; cost_per_order should be undefined")
	}
	unk := rowByLabel(t, s, "unknown")
	if value(t, unk, "total_cost") != 90 {
		t.Fatalf("unknown: %+v", unk.Values)
	}
	total := 0
	for _, r := range s.Rows {
		total += r.Size
	}
	if total != 3 {
		t.Fatalf("every cost row should be attributed once, got %d", total)
	}
	if len(s.Notes) == 0 || !strings.Contains(s.Notes[0], "1 of 3 cost row(s)") {
		t.Fatalf("notes: %v", s.Notes)
	}

	cc := mustSection(t, rep, SectionCustomerCosts)
	// d1 served acme twice and zen once
	if got := value(t, rowByLabel(t, cc, "acme"), "customers_per_driver"); got != 2 {
		t.Fatalf("customers_per_driver = %v", got)
	}

	veh := mustSection(t, rep, SectionVehicleCosts)
	ev := rowByLabel(t, veh, "EV-3W")
	if value(t, ev, "driver_count") != 2 || !approx(value(t, ev, "cost_per_driver"), 750.25) {
		t.Fatalf("EV-3W: %+v", ev.Values)
	}
}

func TestEarningsSectionsAndFilters(t *testing.T) {
	trips := mustCSV(t, "trips.csv", tripRows)
	rep := newAnalyzer(DefaultOptions()).Run(Input{Trips: trips})
	m := mustSection(t, rep, SectionMonthlyEarnings)
	if len(m.Rows) != 2 || m.Rows[0].Label != "Mar-2025" {
		t.Fatalf("months: %+v", m.Rows)
	}
	mar := m.Rows[0]
	if value(t, mar, "avg_earning") != 750 || value(t, mar, "max_earning") != 1000 {
		t.Fatalf("march: %+v", mar.Values)
	}
	if apr := m.Rows[1]; apr.Size != 1 {
		t.Fatalf("april should only keep the valid trip: %+v", apr)
	}
	joined := strings.Join(m.Notes, "\n")
	if !strings.Contains(joined, "1 trip(s) missing") || !strings.Contains(joined, "1 trip(s) with negative earnings") {
		t.Fatalf("notes: %v", m.Notes)
	}

	opt := DefaultOptions()
	opt.Filters = Filters{Month: "apr-2025", Vehicles: []string{"bike"}}
	rep = newAnalyzer(opt).Run(Input{Trips: trips})
	v := mustSection(t, rep, SectionVehicleEarnings)
	if len(v.Rows) != 1 || v.Rows[0].Label != "Bike" {
		t.Fatalf("filtered vehicles: %+v", v.Rows)
	}
	if trips.Len() != 5 {
		t.Fatalf("source table mutated: %d rows", trips.Len())
	}
}

func TestHubFilterNarrowsDeliveries(t *testing.T) {
	opt := DefaultOptions()
	opt.Filters.Hub = "a"
	rep := newAnalyzer(opt).Run(Input{Deliveries: mustCSV(t, "deliveries.csv", deliveryRows)})
	hubs := mustSection(t, rep, SectionHubDeliveries)
	if len(hubs.Rows) != 1 || hubs.Rows[0].Label != "A" {
		t.Fatalf("filtered hubs: %+v", hubs.Rows)
	}
}

func TestSkippedSectionsNameMissingRoles(t *testing.T) {
	deliv := mustCSV(t, "deliveries.csv", []string{"number,hub", "o1,A"})
	rep := newAnalyzer(DefaultOptions()).Run(Input{Deliveries: deliv})
	s, _ := rep.Section(SectionWeightCategories)
	if s.Ran() || !strings.Contains(s.Skipped, "weight") {
		t.Fatalf("expected weight section skipped, got %+v", s)
	}
	a := newAnalyzer(DefaultOptions())
	_, err := a.resolver.Require(deliv, Deliveries, resolve.Weight)
	if !errors.Is(err, resolve.ErrMissingColumn) {
		t.Fatalf("want ErrMissingColumn, got %v", err)
	}
	md := rep.Markdown()
	if !strings.Contains(md, "[HUB DELIVERIES]") || !strings.Contains(md, "[SKIPPED]") || !strings.Contains(md, "Weight categories: deliveries: missing column for weight") {
		t.Fatalf("markdown: %s", md)
	}
}

func TestMarkdownAndJSON(t *testing.T) {
	opt := DefaultOptions()
	opt.TopN = 1
	rep := newAnalyzer(opt).Run(Input{
		Deliveries: mustCSV(t, "deliveries.csv", deliveryRows),
		Costs:      mustCSV(t, "costs.csv", costRows),
	})
	md := rep.Markdown()
	for _, want := range []string{
		"[LAST-MILE REPORT]",
		"- deliveries: deliveries.csv (5 rows, 8 columns)",
		"hub=hub",
		"[HUB COST ANALYSIS]",
		"(top 1 of 3)",
		"• 1 of 3 cost row(s) had no hub in deliveries",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}

	rep = newAnalyzer(DefaultOptions()).Run(Input{Costs: mustCSV(t, "costs.csv", costRows)})
	md = rep.Markdown()
	if !strings.Contains(md, "cost/order —") {
		t.Fatalf("undefined ratio should render as a dash:\n%s", md)
	}
	b, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"cost_per_order":null`) {
		t.Fatalf("undefined ratio should be null in JSON: %s", b)
	}
}
