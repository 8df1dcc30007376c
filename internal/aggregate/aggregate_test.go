package aggregate

import (
	"testing"
	"time"

	"github.com/KaramelBytes/lastmile-cli/internal/metrics"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

func hubTable() *table.Table {
	n, s := table.Num, table.Str
	return table.New("deliveries.csv", []string{"hub", "weight", "kms"}, [][]table.Value{
		{s("A"), n(5), n(2)},
		{s("A"), n(3), n(4)},
		{s("B"), n(10), n(1)},
	})
}

func TestSumWeightByHub(t *testing.T) {
	res := Aggregate(hubTable(), "hub", Sum("total_weight", "weight"))
	want := map[string]float64{"A": 8, "B": 10}
	if len(res.Rows) != len(want) {
		t.Fatalf("groups = %d", len(res.Rows))
	}
	for k, w := range want {
		row, ok := res.Find(k)
		if !ok {
			t.Fatalf("missing group %s", k)
		}
		if got, _ := row.Get("total_weight").Float(); got != w {
			t.Fatalf("%s = %v, want %v", k, got, w)
		}
	}
}

func TestMissingKeysAndCells(t *testing.T) {
	n, s := table.Num, table.Str
	tbl := table.New("d", []string{"hub", "weight", "driver"}, [][]table.Value{
		{s("A"), n(4), s("d1")},
		{s(""), n(2), s("d2")},
		{s("A"), {}, s("d1")},
		{s("A"), s("heavy"), s("")},
		{{}, n(6), s("d3")},
	})
	res := Aggregate(tbl, "hub",
		Sum("w", "weight"), Mean("avg_w", "weight"), Count("n", "weight"),
		NUnique("drivers", "driver"), Min("min_w", "weight"), Max("max_w", "weight"))

	if res.Total() != tbl.Len() {
		t.Fatalf("group sizes sum to %d, want %d", res.Total(), tbl.Len())
	}
	a, _ := res.Find("A")
	if a.Size != 3 {
		t.Fatalf("A size = %d", a.Size)
	}
	if v, _ := a.Get("w").Float(); v != 4 {
		t.Fatalf("sum must skip missing and text cells, got %v", v)
	}
	if v, _ := a.Get("avg_w").Float(); v != 4 {
		t.Fatalf("mean = %v", v)
	}
	if v, _ := a.Get("n").Float(); v != 2 {
		t.Fatalf("count of non-missing = %v", v)
	}
	if v, _ := a.Get("drivers").Float(); v != 1 {
		t.Fatalf("nunique = %v", v)
	}
	u, ok := res.Find(Unknown)
	if !ok || u.Size != 2 {
		t.Fatalf("unknown group = %+v", u)
	}
	if v, _ := u.Get("max_w").Float(); v != 6 {
		t.Fatalf("max = %v", v)
	}
}

func TestMeanOfNothingIsUndefined(t *testing.T) {
	tbl := table.New("d", []string{"hub", "kms"}, [][]table.Value{{table.Str("A"), {}}})
	row := Aggregate(tbl, "hub", Mean("avg", "kms"), Min("min", "kms")).Rows[0]
	if row.Get("avg").Defined() || row.Get("min").Defined() {
		t.Fatalf("mean/min of no values must be undefined")
	}
}

func TestDeriveAndSort(t *testing.T) {
	n, s := table.Num, table.Str
	tbl := table.New("c", []string{"hub", "cost", "orders"}, [][]table.Value{
		{s("A"), n(100), n(10)},
		{s("B"), n(300), n(10)},
		{s("C"), n(50), n(0)},
		{s("D"), n(200), n(10)},
	})
	res := Aggregate(tbl, "hub", Sum("total_cost", "cost"), Sum("total_orders", "orders")).
		Derive("cpo", func(r Row) metrics.Value {
			return metrics.CostPerOrder(r.Get("total_cost"), r.Get("total_orders"))
		}).
		SortBy("cpo", true)

	keys := []string{}
	for _, r := range res.Rows {
		keys = append(keys, r.Key)
	}
	want := []string{"B", "D", "A", "C"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
	if res.Rows[3].Get("cpo").Defined() {
		t.Fatalf("zero orders must give undefined cpo")
	}
	if len(res.Top(2)) != 2 || len(res.Top(0)) != 4 {
		t.Fatalf("Top misbehaves")
	}
	if res.Metrics[len(res.Metrics)-1] != "cpo" {
		t.Fatalf("derived metric not registered: %v", res.Metrics)
	}
}

func TestAggregateByComposite(t *testing.T) {
	s := table.Str
	tbl := table.New("d", []string{"customer", "hub"}, [][]table.Value{
		{s("Acme"), s("North")},
		{s("Acme"), s("North")},
		{s("Acme"), s("")},
	})
	res := AggregateBy(tbl, []string{"customer", "hub"})
	if len(res.Rows) != 2 || res.Rows[0].Key != "Acme | North" || res.Rows[0].Size != 2 {
		t.Fatalf("rows = %+v", res.Rows)
	}
	if res.Rows[1].Parts[1] != Unknown {
		t.Fatalf("missing part must be unknown: %v", res.Rows[1].Parts)
	}
}

func TestLiteralUnknownStaysSeparateFromMissing(t *testing.T) {
	s := table.Str
	tbl := table.New("d", []string{"hub"}, [][]table.Value{{s("unknown")}, {s("")}, {s("A")}})
	res := Aggregate(tbl, "hub").SortByKey(func(a, b string) bool { return a < b })
	if len(res.Rows) != 3 {
		t.Fatalf("groups = %+v", res.Rows)
	}
	last := res.Rows[2]
	if !last.Missing || last.Key != Unknown || last.Size != 1 {
		t.Fatalf("missing group must sort last on its own: %+v", last)
	}
	if res.Rows[1].Key != Unknown || res.Rows[1].Missing {
		t.Fatalf("literal unknown value must be a regular group: %+v", res.Rows[1])
	}
}

func TestWholeTableGroupOnEmptyInput(t *testing.T) {
	tbl := table.New("d", []string{"hub", "weight"}, nil)
	res := AggregateBy(tbl, nil, Sum("w", "weight"), Mean("avg", "weight"), NUnique("hubs", "hub"))
	if len(res.Rows) != 1 || res.Rows[0].Size != 0 {
		t.Fatalf("rows = %+v", res.Rows)
	}
	row := res.Rows[0]
	if v, _ := row.Get("w").Float(); v != 0 {
		t.Fatalf("sum = %v", v)
	}
	if v, _ := row.Get("hubs").Float(); v != 0 {
		t.Fatalf("nunique = %v", v)
	}
	if row.Get("avg").Defined() {
		t.Fatalf("mean over no rows must be undefined")
	}
	if got := Aggregate(tbl, "hub"); len(got.Rows) != 0 {
		t.Fatalf("grouped empty table must have no rows: %+v", got.Rows)
	}
}

func TestTopPer(t *testing.T) {
	n, s := table.Num, table.Str
	tbl := table.New("c", []string{"vehicle", "driver", "opc"}, [][]table.Value{
		{s("EV"), s("d1"), n(1)},
		{s("EV"), s("d2"), n(5)},
		{s("Bike"), s("d3"), n(2)},
		{s("EV"), s("d4"), n(3)},
		{s("Bike"), s("d5"), n(4)},
	})
	res := AggregateBy(tbl, []string{"vehicle", "driver"}, Sum("opc", "opc")).SortBy("opc", true).TopPer(0, 2)
	got := []string{}
	for _, r := range res.Rows {
		got = append(got, r.Key)
	}
	want := []string{"EV | d2", "Bike | d5", "EV | d4", "Bike | d3"}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rows = %v, want %v", got, want)
		}
	}

	res.SortByPart(0, func(a, b string) bool { return a < b })
	want = []string{"Bike | d5", "Bike | d3", "EV | d2", "EV | d4"}
	for i := range want {
		if res.Rows[i].Key != want[i] {
			t.Fatalf("after SortByPart row %d = %s, want %s", i, res.Rows[i].Key, want[i])
		}
	}
}

func TestWeightBucket(t *testing.T) {
	n := table.Num
	tbl := table.New("d", []string{"weight"}, [][]table.Value{{n(0)}, {n(1)}, {n(4.99)}, {n(100)}, {n(-1)}, {table.Str("x")}})
	out, err := WeightBucket(tbl, "weight", "weight_category", DefaultWeightEdges)
	if err != nil {
		t.Fatalf("WeightBucket: %v", err)
	}
	want := []string{"0-1kg", "1-5kg", "1-5kg", "100kg+", "", ""}
	for i, w := range want {
		if got := out.At(i, "weight_category").Key(); got != w {
			t.Fatalf("row %d = %q, want %q", i, got, w)
		}
	}
	if !out.IsDerived("weight_category") {
		t.Fatalf("bucket column must be derived")
	}
	labels := WeightLabels(DefaultWeightEdges)
	if len(labels) != 7 || labels[4] != "20-50kg" {
		t.Fatalf("labels = %v", labels)
	}

	res := Aggregate(out, "weight_category").SortByKey(LabelOrder(labels))
	if res.Rows[0].Key != "0-1kg" || res.Rows[len(res.Rows)-1].Key != Unknown {
		t.Fatalf("bucket order = %+v", res.Rows)
	}
}

func TestHourAndMonth(t *testing.T) {
	ts := func(m time.Month, h int) table.Value { return table.At(time.Date(2025, m, 3, h, 0, 0, 0, time.UTC)) }
	tbl := table.New("d", []string{"created_date"}, [][]table.Value{{ts(4, 9)}, {ts(3, 17)}, {ts(4, 9)}, {table.Str("bad")}})
	withHour, err := HourOfDay(tbl, "created_date", "hour")
	if err != nil {
		t.Fatalf("HourOfDay: %v", err)
	}
	withMonth, err := Month(withHour, "created_date", "month")
	if err != nil {
		t.Fatalf("Month: %v", err)
	}
	if withMonth.At(1, "hour").N != 17 || withMonth.At(0, "month").S != "Apr-2025" || !withMonth.At(3, "month").IsMissing() {
		t.Fatalf("derived time columns wrong")
	}
	res := Aggregate(withMonth, "month").SortByKey(MonthOrder)
	if res.Rows[0].Key != "Mar-2025" || res.Rows[1].Key != "Apr-2025" || res.Rows[1].Size != 2 {
		t.Fatalf("month order = %+v", res.Rows)
	}
	hours := Aggregate(withMonth, "hour").SortByKey(NumericOrder)
	if hours.Rows[0].Key != "9" || hours.Rows[1].Key != "17" {
		t.Fatalf("hour order = %+v", hours.Rows)
	}
}
