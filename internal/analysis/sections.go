package analysis

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/KaramelBytes/lastmile-cli/internal/aggregate"
	"github.com/KaramelBytes/lastmile-cli/internal/clean"
	"github.com/KaramelBytes/lastmile-cli/internal/join"
	"github.com/KaramelBytes/lastmile-cli/internal/metrics"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// Section ids.
const (
	SectionSummary            = "summary"
	SectionHubDeliveries      = "hub_deliveries"
	SectionCustomerDeliveries = "customer_deliveries"
	SectionCustomerHub        = "customer_hub"
	SectionWeightCategories   = "weight_categories"
	SectionHourly             = "hourly_deliveries"
	SectionPostcodes          = "postcodes"
	SectionPickupsByCustomer  = "pickups_by_customer"
	SectionPickupsByHour      = "pickups_by_hour"
	SectionFirstMileLinks     = "first_mile_links"
	SectionPickupSummary      = "pickup_summary"
	SectionDriverCosts        = "driver_costs"
	SectionEfficientDrivers   = "efficient_drivers"
	SectionVehicleTopDrivers  = "vehicle_top_drivers"
	SectionHubCosts           = "hub_costs"
	SectionCustomerCosts      = "customer_costs"
	SectionVehicleCosts       = "vehicle_costs"
	SectionMonthlyEarnings    = "monthly_earnings"
	SectionVehicleEarnings    = "vehicle_earnings"
)

func size(r aggregate.Row) metrics.Value { return metrics.Of(float64(r.Size)) }

func colSpec(key, header string, decimals int) ColumnSpec {
	return ColumnSpec{Key: key, Header: header, Decimals: decimals}
}

func (a *Analyzer) summary(d *Dataset) Section {
	s := Section{ID: SectionSummary, Title: "Summary"}
	if !a.require(&s, Deliveries, d) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	var ms []aggregate.Metric
	for _, x := range []struct {
		role resolve.Role
		key  string
	}{{resolve.HubID, "hubs"}, {resolve.DriverID, "drivers"}, {resolve.CustomerID, "customers"}} {
		if c := d.Col(x.role); c != "" {
			ms = append(ms, aggregate.NUnique(x.key, c))
			s.Columns = append(s.Columns, colSpec(x.key, x.key, 0))
		}
	}
	if w := d.Col(resolve.Weight); w != "" {
		ms = append(ms, aggregate.Sum("total_weight", w))
		s.Columns = append(s.Columns, colSpec("total_weight", "total weight", 2))
	}
	if km := d.Col(resolve.Distance); km != "" {
		ms = append(ms, aggregate.Mean("avg_distance", km), aggregate.Min("min_distance", km), aggregate.Max("max_distance", km))
		s.Columns = append(s.Columns, colSpec("avg_distance", "avg km", 2), colSpec("min_distance", "min km", 2), colSpec("max_distance", "max km", 2))
	}
	res := aggregate.AggregateBy(d.Table, nil, ms...).Derive("deliveries", size)
	for i := range res.Rows {
		res.Rows[i].Key = "all"
	}
	a.fill(&s, res)
	return s
}

func (a *Analyzer) hubDeliveries(d *Dataset) Section {
	s := Section{ID: SectionHubDeliveries, Title: "Hub deliveries"}
	if !a.require(&s, Deliveries, d, resolve.HubID) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	var ms []aggregate.Metric
	if w := d.Col(resolve.Weight); w != "" {
		ms = append(ms, aggregate.Sum("total_weight", w))
		s.Columns = append(s.Columns, colSpec("total_weight", "total weight", 2))
	}
	res := aggregate.Aggregate(d.Table, d.Col(resolve.HubID), ms...).
		Derive("deliveries", size).
		SortBy("deliveries", true)
	a.fill(&s, res)
	return s
}

func (a *Analyzer) customerDeliveries(d *Dataset) Section {
	s := Section{ID: SectionCustomerDeliveries, Title: "Customer delivery analysis"}
	if !a.require(&s, Deliveries, d, resolve.CustomerID) {
		return s
	}
	var ms []aggregate.Metric
	orders := d.Col(resolve.OrderNumber)
	if orders != "" {
		ms = append(ms, aggregate.Count("delivery_count", orders))
	}
	s.Columns = []ColumnSpec{colSpec("delivery_count", "deliveries", 0)}
	w, km := d.Col(resolve.Weight), d.Col(resolve.Distance)
	if w != "" {
		ms = append(ms, aggregate.Sum("total_weight", w), aggregate.Mean("avg_weight", w))
		s.Columns = append(s.Columns, colSpec("total_weight", "total weight", 2), colSpec("avg_weight", "avg weight", 2))
	}
	if km != "" {
		ms = append(ms, aggregate.Sum("total_distance", km), aggregate.Mean("avg_distance", km))
		s.Columns = append(s.Columns, colSpec("total_distance", "total km", 2), colSpec("avg_distance", "avg km", 2))
	}
	res := aggregate.Aggregate(d.Table, d.Col(resolve.CustomerID), ms...)
	if orders == "" {
		res.Derive("delivery_count", size)
	}
	if w != "" && km != "" {
		res.Derive("kg_per_km", func(r aggregate.Row) metrics.Value {
			return metrics.WeightPerDistance(r.Get("total_weight"), r.Get("total_distance"))
		}).Derive("weight_distance_product", func(r aggregate.Row) metrics.Value {
			return metrics.Product(r.Get("total_weight"), r.Get("avg_distance"))
		})
		s.Columns = append(s.Columns, colSpec("kg_per_km", "kg/km", 2), colSpec("weight_distance_product", "weight x distance", 2))
	}
	if w != "" {
		res.SortBy("total_weight", true)
	} else {
		res.SortBy("delivery_count", true)
	}
	a.fill(&s, res)
	return s
}

func (a *Analyzer) customerHub(d *Dataset) Section {
	s := Section{ID: SectionCustomerHub, Title: "Customer hub breakdown"}
	if !a.require(&s, Deliveries, d, resolve.CustomerID, resolve.HubID) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	var ms []aggregate.Metric
	if w := d.Col(resolve.Weight); w != "" {
		ms = append(ms, aggregate.Sum("total_weight", w))
		s.Columns = append(s.Columns, colSpec("total_weight", "total weight", 2))
	}
	res := aggregate.AggregateBy(d.Table, []string{d.Col(resolve.CustomerID), d.Col(resolve.HubID)}, ms...).
		Derive("deliveries", size).
		SortBy("deliveries", true)
	a.fill(&s, res)
	return s
}

// distanceMetrics adds average and total distance when the table has one.
func distanceMetrics(s *Section, d *Dataset) []aggregate.Metric {
	km := d.Col(resolve.Distance)
	if km == "" {
		return nil
	}
	s.Columns = append(s.Columns, colSpec("avg_distance", "avg km", 2), colSpec("total_distance", "total km", 2))
	return []aggregate.Metric{aggregate.Mean("avg_distance", km), aggregate.Sum("total_distance", km)}
}

func (a *Analyzer) weightCategories(d *Dataset) Section {
	s := Section{ID: SectionWeightCategories, Title: "Weight categories"}
	if !a.require(&s, Deliveries, d, resolve.Weight) {
		return s
	}
	t, err := aggregate.WeightBucket(d.Table, d.Col(resolve.Weight), "weight_category", a.opt.WeightEdges)
	if err != nil {
		s.Skipped = err.Error()
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	ms := distanceMetrics(&s, d)
	res := aggregate.Aggregate(t, "weight_category", ms...).
		Derive("deliveries", size).
		SortByKey(aggregate.LabelOrder(aggregate.WeightLabels(a.opt.WeightEdges)))
	a.fill(&s, res)
	return s
}

func (a *Analyzer) hourly(d *Dataset) Section {
	s := Section{ID: SectionHourly, Title: "Deliveries by hour"}
	if !a.require(&s, Deliveries, d, resolve.Timestamp) {
		return s
	}
	t, err := aggregate.HourOfDay(d.Table, d.Col(resolve.Timestamp), "hour")
	if err != nil {
		s.Skipped = err.Error()
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	var ms []aggregate.Metric
	if w := d.Col(resolve.Weight); w != "" {
		ms = append(ms, aggregate.Mean("avg_weight", w))
		s.Columns = append(s.Columns, colSpec("avg_weight", "avg weight", 2))
	}
	ms = append(ms, distanceMetrics(&s, d)...)
	res := aggregate.Aggregate(t, "hour", ms...).
		Derive("deliveries", size).
		SortByKey(aggregate.NumericOrder)
	// hours are a fixed axis; never truncate
	fillTop(&s, res, 0)
	return s
}

func (a *Analyzer) postcodes(d *Dataset) Section {
	s := Section{ID: SectionPostcodes, Title: "Deliveries by postcode"}
	if !a.require(&s, Deliveries, d, resolve.Postcode) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("deliveries", "deliveries", 0)}
	var ms []aggregate.Metric
	if w := d.Col(resolve.Weight); w != "" {
		ms = append(ms, aggregate.Sum("total_weight", w))
		s.Columns = append(s.Columns, colSpec("total_weight", "total weight", 2))
	}
	res := aggregate.Aggregate(d.Table, d.Col(resolve.Postcode), ms...).
		Derive("deliveries", size).
		SortBy("deliveries", true)
	a.fill(&s, res)
	return s
}

func (a *Analyzer) pickupsByCustomer(d *Dataset) Section {
	s := Section{ID: SectionPickupsByCustomer, Title: "Pickups by customer"}
	if !a.require(&s, Pickups, d, resolve.CustomerID) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("pickups", "pickups", 0)}
	var ms []aggregate.Metric
	if o := d.Col(resolve.OrderCount); o != "" {
		ms = append(ms, aggregate.Sum("orders", o))
		s.Columns = append(s.Columns, colSpec("orders", "orders", 0))
	}
	res := aggregate.Aggregate(d.Table, d.Col(resolve.CustomerID), ms...).
		Derive("pickups", size).
		SortBy("pickups", true)
	a.fill(&s, res)
	return s
}

func (a *Analyzer) pickupsByHour(d *Dataset) Section {
	s := Section{ID: SectionPickupsByHour, Title: "Pickups by hour"}
	if !a.require(&s, Pickups, d, resolve.Timestamp) {
		return s
	}
	t, err := aggregate.HourOfDay(d.Table, d.Col(resolve.Timestamp), "hour")
	if err != nil {
		s.Skipped = err.Error()
		return s
	}
	s.Columns = []ColumnSpec{colSpec("pickups", "pickups", 0)}
	res := aggregate.Aggregate(t, "hour").Derive("pickups", size).SortByKey(aggregate.NumericOrder)
	fillTop(&s, res, 0)
	return s
}

func (a *Analyzer) firstMileLinks(d *Dataset) Section {
	s := Section{ID: SectionFirstMileLinks, Title: "First-mile links"}
	if !a.require(&s, Pickups, d, resolve.CustomerID, resolve.HubID) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("pickups", "pickups", 0)}
	res := aggregate.AggregateBy(d.Table, []string{d.Col(resolve.CustomerID), d.Col(resolve.HubID)}).
		Derive("pickups", size).
		SortBy("pickups", true)
	a.fill(&s, res)
	return s
}

func (a *Analyzer) pickupSummary(d *Dataset) Section {
	s := Section{ID: SectionPickupSummary, Title: "First-mile summary"}
	if !a.require(&s, Pickups, d) {
		return s
	}
	s.Columns = []ColumnSpec{colSpec("pickups", "pickups", 0)}
	var ms []aggregate.Metric
	cust := d.Col(resolve.CustomerID)
	if cust != "" {
		ms = append(ms, aggregate.NUnique("customers", cust))
		s.Columns = append(s.Columns, colSpec("customers", "customers", 0), colSpec("avg_pickups_per_customer", "pickups/customer", 2))
	}
	orders := d.Col(resolve.OrderCount)
	if orders != "" {
		ms = append(ms, aggregate.Sum("total_orders", orders))
	}
	s.Columns = append(s.Columns, colSpec("total_orders", "orders", 0))
	res := aggregate.AggregateBy(d.Table, nil, ms...).Derive("pickups", size)
	if cust != "" {
		res.Derive("avg_pickups_per_customer", func(r aggregate.Row) metrics.Value {
			return metrics.Ratio(r.Get("pickups"), r.Get("customers"))
		})
	}
	if orders == "" {
		// each pickup row is one order
		res.Derive("total_orders", size)
	}
	for i := range res.Rows {
		res.Rows[i].Key = "all"
	}
	a.fill(&s, res)
	return s
}

func (a *Analyzer) driverCosts(c *Dataset) Section {
	s := Section{ID: SectionDriverCosts, Title: "Driver costs"}
	if !a.require(&s, Costs, c, resolve.DriverID, resolve.CostTotal) {
		return s
	}
	res := driverResult(&s, c, nil)
	res.SortBy("total_cost", true)
	a.fill(&s, res)
	return s
}

// driverResult aggregates costs per driver, prefixed by the extra grouping columns.
func driverResult(s *Section, c *Dataset, prefix []string) *aggregate.Result {
	keys := lo.Uniq(lo.Compact(append(append([]string(nil), prefix...), c.Col(resolve.DriverID), c.Col(resolve.DriverName))))
	ms := []aggregate.Metric{aggregate.Sum("total_cost", c.Col(resolve.CostTotal))}
	s.Columns = []ColumnSpec{colSpec("total_cost", "cost", 2)}
	orders := c.Col(resolve.OrderCount)
	if orders != "" {
		ms = append(ms, aggregate.Sum("total_orders", orders))
		s.Columns = append(s.Columns, colSpec("total_orders", "orders", 0), colSpec("cost_per_order", "cost/order", 2), colSpec("orders_per_cost", "orders/cost", 4))
	}
	if cpo := c.Col(resolve.CPO); cpo != "" {
		ms = append(ms, aggregate.Mean("reported_cpo", cpo))
		s.Columns = append(s.Columns, colSpec("reported_cpo", "reported cpo", 2))
	}
	res := aggregate.AggregateBy(c.Table, keys, ms...)
	if orders != "" {
		res.Derive("cost_per_order", func(r aggregate.Row) metrics.Value {
			return metrics.CostPerOrder(r.Get("total_cost"), r.Get("total_orders"))
		}).Derive("orders_per_cost", func(r aggregate.Row) metrics.Value {
			return metrics.OrdersPerCost(r.Get("total_orders"), r.Get("total_cost"))
		})
	}
	return res
}

// TopDriversPerVehicle caps the vehicle_top_drivers section per vehicle model.
const TopDriversPerVehicle = 3

func (a *Analyzer) efficientDrivers(c *Dataset) Section {
	s := Section{ID: SectionEfficientDrivers, Title: "Most efficient drivers"}
	if !a.require(&s, Costs, c, resolve.DriverID, resolve.CostTotal, resolve.OrderCount) {
		return s
	}
	res := driverResult(&s, c, nil).SortBy("orders_per_cost", true)
	a.fill(&s, res)
	return s
}

func (a *Analyzer) vehicleTopDrivers(c *Dataset) Section {
	s := Section{ID: SectionVehicleTopDrivers, Title: "Top drivers per vehicle model"}
	if !a.require(&s, Costs, c, resolve.VehicleModel, resolve.DriverID, resolve.CostTotal, resolve.OrderCount) {
		return s
	}
	res := driverResult(&s, c, []string{c.Col(resolve.VehicleModel)}).
		SortBy("orders_per_cost", true).
		TopPer(0, TopDriversPerVehicle).
		SortByPart(0, func(a, b string) bool { return a < b })
	// already capped per vehicle
	fillTop(&s, res, 0)
	return s
}

// attribute joins each cost row to the driver's primary entity from deliveries.
// It returns the joined table and the name of the primary column in it.
func attribute(deliv, costs *Dataset, role resolve.Role, primary, count string) (*table.Table, string, join.Stats) {
	dDriver := deliv.Col(resolve.DriverID)
	em := join.BuildEntityMap(deliv.Table, dDriver, deliv.Col(role))
	right := em.Table("driver_"+primary, dDriver, primary, count)
	joined, st := join.Left(costs.Table, right, costs.Col(resolve.DriverID), dDriver)
	if costs.Table.Has(primary) {
		primary += join.RightSuffix
	}
	return joined, primary, st
}

func costMetrics(s *Section, c *Dataset) []aggregate.Metric {
	s.Columns = []ColumnSpec{
		colSpec("total_cost", "total cost", 2),
		colSpec("total_orders", "orders", 0),
		colSpec("driver_count", "drivers", 0),
		colSpec("cost_per_order", "cost/order", 2),
		colSpec("orders_per_driver", "orders/driver", 2),
	}
	return []aggregate.Metric{
		aggregate.Sum("total_cost", c.Col(resolve.CostTotal)),
		aggregate.Sum("total_orders", c.Col(resolve.OrderCount)),
		aggregate.NUnique("driver_count", c.Col(resolve.DriverID)),
	}
}

func deriveCostRatios(res *aggregate.Result) *aggregate.Result {
	return res.Derive("cost_per_order", func(r aggregate.Row) metrics.Value {
		return metrics.CostPerOrder(r.Get("total_cost"), r.Get("total_orders"))
	}).Derive("orders_per_driver", func(r aggregate.Row) metrics.Value {
		return metrics.OrdersPerDriver(r.Get("total_orders"), r.Get("driver_count"))
	})
}

func joinNotes(st join.Stats, entity string) []string {
	var notes []string
	if st.Unmatched > 0 {
		notes = append(notes, fmt.Sprintf("%d of %d cost row(s) had no %s in deliveries and are grouped under %s", st.Unmatched, st.Left, entity, aggregate.Unknown))
	}
	if st.Mismatch {
		notes = append(notes, fmt.Sprintf("driver id kinds differ (costs: %s, deliveries: %s); keys were compared by normalized value", st.LeftKind, st.RightKind))
	}
	return notes
}

func (a *Analyzer) hubCosts(deliv, costs *Dataset) Section {
	s := Section{ID: SectionHubCosts, Title: "Hub cost analysis"}
	if !a.require(&s, Deliveries, deliv, resolve.DriverID, resolve.HubID) ||
		!a.require(&s, Costs, costs, resolve.DriverID, resolve.CostTotal, resolve.OrderCount) {
		return s
	}
	joined, col, st := attribute(deliv, costs, resolve.HubID, "primary_hub", "hub_count")
	res := aggregate.Aggregate(joined, col, costMetrics(&s, costs)...)
	deriveCostRatios(res).SortBy("total_cost", true)
	a.fill(&s, res)
	s.Notes = joinNotes(st, "hub")
	return s
}

func (a *Analyzer) customerCosts(deliv, costs *Dataset) Section {
	s := Section{ID: SectionCustomerCosts, Title: "Customer cost analysis"}
	if !a.require(&s, Deliveries, deliv, resolve.DriverID, resolve.CustomerID) ||
		!a.require(&s, Costs, costs, resolve.DriverID, resolve.CostTotal, resolve.OrderCount) {
		return s
	}
	joined, col, st := attribute(deliv, costs, resolve.CustomerID, "primary_customer", "customer_count")
	count := "customer_count"
	if costs.Table.Has(count) {
		count += join.RightSuffix
	}
	ms := append(costMetrics(&s, costs), aggregate.Mean("customers_per_driver", count))
	s.Columns = append(s.Columns, colSpec("customers_per_driver", "customers/driver", 2))
	res := aggregate.Aggregate(joined, col, ms...)
	deriveCostRatios(res).SortBy("total_cost", true)
	a.fill(&s, res)
	s.Notes = joinNotes(st, "customer")
	return s
}

func (a *Analyzer) vehicleCosts(c *Dataset) Section {
	s := Section{ID: SectionVehicleCosts, Title: "Vehicle efficiency"}
	if !a.require(&s, Costs, c, resolve.VehicleModel, resolve.DriverID, resolve.CostTotal, resolve.OrderCount) {
		return s
	}
	ms := costMetrics(&s, c)
	s.Columns = append(s.Columns, colSpec("cost_per_driver", "cost/driver", 2))
	res := aggregate.Aggregate(c.Table, c.Col(resolve.VehicleModel), ms...)
	deriveCostRatios(res).Derive("cost_per_driver", func(r aggregate.Row) metrics.Value {
		return metrics.CostPerDriver(r.Get("total_cost"), r.Get("driver_count"))
	}).SortBy("total_cost", true)
	a.fill(&s, res)
	return s
}

// earnings renders the buy-rate sections: per month and per vehicle model.
func (a *Analyzer) earnings(d *Dataset) []Section {
	month := Section{ID: SectionMonthlyEarnings, Title: "Monthly earnings"}
	vehicle := Section{ID: SectionVehicleEarnings, Title: "Earnings by vehicle model"}
	roles := []resolve.Role{resolve.Timestamp, resolve.Latitude, resolve.Longitude, resolve.Earning, resolve.VehicleModel}
	if !a.require(&month, Trips, d, roles...) {
		vehicle.Skipped = month.Skipped
		return []Section{month, vehicle}
	}
	vehicle.Source = month.Source
	cols := lo.Map(roles, func(r resolve.Role, _ int) string { return d.Col(r) })
	t, excluded := clean.Require(d.Table, cols...)
	t, err := aggregate.Month(t, d.Col(resolve.Timestamp), "month")
	if err != nil {
		month.Skipped, vehicle.Skipped = err.Error(), err.Error()
		return []Section{month, vehicle}
	}
	f := a.opt.Filters
	if f.Month != "" {
		t = filterEq(t, "month", f.Month)
	}
	t = filterIn(t, d.Col(resolve.VehicleModel), f.Vehicles)

	var notes []string
	if excluded > 0 {
		notes = append(notes, fmt.Sprintf("%d trip(s) missing time, location, earning or vehicle excluded", excluded))
	}
	if d.Clean.Negative > 0 {
		notes = append(notes, fmt.Sprintf("%d trip(s) with negative earnings excluded", d.Clean.Negative))
	}

	earn := d.Col(resolve.Earning)
	ms := []aggregate.Metric{
		aggregate.Mean("avg_earning", earn),
		aggregate.Min("min_earning", earn),
		aggregate.Max("max_earning", earn),
		aggregate.Sum("total_earning", earn),
	}
	specs := []ColumnSpec{
		colSpec("trips", "trips", 0),
		colSpec("avg_earning", "avg", 2),
		colSpec("min_earning", "min", 2),
		colSpec("max_earning", "max", 2),
		colSpec("total_earning", "total", 2),
	}

	month.Columns, month.Notes = specs, notes
	byMonth := aggregate.Aggregate(t, "month", ms...).Derive("trips", size).SortByKey(aggregate.MonthOrder)
	a.fill(&month, byMonth)

	vehicle.Columns = specs
	byVehicle := aggregate.Aggregate(t, d.Col(resolve.VehicleModel), ms...).Derive("trips", size).SortBy("avg_earning", true)
	a.fill(&vehicle, byVehicle)
	return []Section{month, vehicle}
}
