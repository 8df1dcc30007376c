package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Role is a semantic label resolved to at most one column per table.
type Role string

const (
	HubID        Role = "hub"
	DriverID     Role = "driver_id"
	DriverName   Role = "driver_name"
	CustomerID   Role = "customer"
	CostTotal    Role = "cost_total"
	OrderCount   Role = "order_count"
	OrderNumber  Role = "order_number"
	Latitude     Role = "latitude"
	Longitude    Role = "longitude"
	Weight       Role = "weight"
	Distance     Role = "distance"
	Timestamp    Role = "timestamp"
	VehicleModel Role = "vehicle_model"
	Earning      Role = "earning"
	CPO          Role = "cpo"
	Postcode     Role = "postcode"
)

// Roles lists every known role in a stable order.
func Roles() []Role {
	out := lo.Keys(defaultRules)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Matcher is a predicate over a lower-cased column name.
type Matcher func(name string) bool

// Exact matches the whole name.
func Exact(s string) Matcher {
	s = strings.ToLower(s)
	return func(name string) bool { return name == s }
}

// Contains matches any name holding every part as a substring.
func Contains(parts ...string) Matcher {
	return func(name string) bool {
		for _, p := range parts {
			if !strings.Contains(name, p) {
				return false
			}
		}
		return true
	}
}

// Suffix matches names ending in s.
func Suffix(s string) Matcher {
	return func(name string) bool { return strings.HasSuffix(name, s) }
}

// Except narrows m by rejecting names matched by any of reject.
func Except(m Matcher, reject ...Matcher) Matcher {
	return func(name string) bool {
		return m(name) && !lo.ContainsBy(reject, func(r Matcher) bool { return r(name) })
	}
}

// AnyOf matches when any m matches.
func AnyOf(ms ...Matcher) Matcher {
	return func(name string) bool {
		return lo.ContainsBy(ms, func(m Matcher) bool { return m(name) })
	}
}

// coordinate rejects geographic companions such as hub_lat or customerlong.
var coordinate = AnyOf(Suffix("lat"), Suffix("long"), Suffix("lng"), Suffix("latitude"), Suffix("longitude"))

var defaultRules = map[Role][]Matcher{
	HubID: {
		Exact("hub"),
		Except(Contains("hub"), coordinate, Contains("customer_hub"), Contains("primary_")),
		Except(Contains("microwarehouse"), coordinate),
		Except(Contains("warehouse"), coordinate),
	},
	DriverID: {
		Exact("driver_id"),
		Contains("driver_id"),
		Exact("driver"),
		Except(Contains("driver"), Suffix("_name"), Suffix("_count"), Contains("per_driver")),
	},
	DriverName: {
		Exact("driver"),
		Exact("driver_name"),
		Contains("driver", "name"),
	},
	CustomerID: {
		Exact("customer"),
		Except(Contains("customer"), coordinate, Suffix("_count"), Contains("primary_"), Contains("customer_hub")),
	},
	CostTotal: {
		Exact("total_cost"),
		Contains("cost", "total"),
		Except(Suffix("_total"), Contains("orders"), Contains("_mile")),
	},
	OrderCount: {
		Exact("total_orders"),
		Contains("total_orders"),
		Exact("num_orders"),
		Contains("num_orders"),
		Exact("orders"),
	},
	OrderNumber: {
		Exact("number"),
		Exact("order_number"),
		Exact("order_id"),
		Exact("awb"),
	},
	Latitude: {
		Exact("lat"),
		Exact("latitude"),
		Exact("delivered_lat"),
		Exact("customerlat"),
		Except(AnyOf(Suffix("_lat"), Suffix("latitude")), Contains("hub")),
	},
	Longitude: {
		Exact("long"),
		Exact("lng"),
		Exact("longitude"),
		Exact("delivered_long"),
		Exact("customerlong"),
		Except(AnyOf(Suffix("_long"), Suffix("_lng"), Suffix("longitude")), Contains("hub")),
	},
	Weight: {
		Exact("weight"),
		Except(Contains("weight"), Suffix("_category"), Suffix("_bucket"), Contains("per_km"), Contains("distance")),
	},
	Distance: {
		Exact("kms"),
		Exact("km"),
		Exact("distance"),
		Except(Contains("kms"), Contains("per_km")),
		Except(Contains("distance"), Contains("weight")),
	},
	Timestamp: {
		Exact("created_date"),
		Exact("pickedup_at"),
		Exact("actual_end_time"),
		Except(AnyOf(Suffix("_date"), Suffix("_at"), Suffix("_time"), Exact("date"), Exact("timestamp")), Contains("updated")),
	},
	VehicleModel: {
		Exact("vehicle_model"),
		Exact("model_name"),
		Contains("vehicle"),
		Contains("model"),
		Contains("registration"),
	},
	Earning: {
		Exact("per_trip_earning"),
		Contains("earning"),
	},
	CPO: {
		Contains("cpo", "overall"),
		Exact("cpo"),
		Contains("cpo"),
	},
	Postcode: {
		Exact("postcode"),
		Exact("pincode"),
		Contains("postcode"),
		Contains("pincode"),
		Contains("zip"),
	},
}

// Columns is anything exposing a column list and the derived marker, such as *table.Table.
type Columns interface {
	Columns() []string
	IsDerived(col string) bool
}

// Resolver maps roles to concrete column names using a priority list of matchers per role.
type Resolver struct {
	rules map[Role][]Matcher
}

// New returns a resolver with the built-in rules. overrides maps a role to an exact
// column name consulted before any built-in matcher.
func New(overrides map[string]string) *Resolver {
	rules := make(map[Role][]Matcher, len(defaultRules))
	for role, ms := range defaultRules {
		rules[role] = ms
	}
	for role, col := range overrides {
		r := Role(strings.ToLower(strings.TrimSpace(role)))
		if col = strings.TrimSpace(col); col == "" {
			continue
		}
		rules[r] = append([]Matcher{Exact(col)}, rules[r]...)
	}
	return &Resolver{rules: rules}
}

// Resolve returns the first column matching role. Matchers are tried in declared
// order; within a matcher, columns are tried in header order. Derived columns never match.
func (r *Resolver) Resolve(t Columns, role Role) (string, bool) {
	cols := lo.Filter(t.Columns(), func(c string, _ int) bool { return !t.IsDerived(c) })
	lower := lo.Map(cols, func(c string, _ int) string { return strings.ToLower(strings.TrimSpace(c)) })
	for _, m := range r.rules[role] {
		for i, name := range lower {
			if m(name) {
				return cols[i], true
			}
		}
	}
	return "", false
}

// Require resolves every role or returns a MissingColumnError naming the gaps.
func (r *Resolver) Require(t Columns, name string, roles ...Role) (Binding, error) {
	b := Binding{}
	var missing []Role
	for _, role := range roles {
		col, ok := r.Resolve(t, role)
		if !ok {
			missing = append(missing, role)
			continue
		}
		b[role] = col
	}
	if len(missing) > 0 {
		return b, &MissingColumnError{Table: name, Roles: missing}
	}
	return b, nil
}

// Bind resolves every known role that is present.
func (r *Resolver) Bind(t Columns) Binding {
	b := Binding{}
	for role := range r.rules {
		if col, ok := r.Resolve(t, role); ok {
			b[role] = col
		}
	}
	return b
}

// Binding is a resolved role-to-column mapping handed to renderers.
type Binding map[Role]string

// Col returns the column bound to role, or "".
func (b Binding) Col(role Role) string { return b[role] }

// Has reports whether role is bound.
func (b Binding) Has(role Role) bool {
	_, ok := b[role]
	return ok
}

// ErrMissingColumn is matched by every MissingColumnError.
var ErrMissingColumn = errors.New("missing column")

// MissingColumnError reports roles that could not be resolved for a table.
// The analysis needing them is skipped; nothing else is affected.
type MissingColumnError struct {
	Table string
	Roles []Role
}

func (e *MissingColumnError) Error() string {
	names := lo.Map(e.Roles, func(r Role, _ int) string { return string(r) })
	if e.Table == "" {
		return fmt.Sprintf("missing column for %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("%s: missing column for %s", e.Table, strings.Join(names, ", "))
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }
