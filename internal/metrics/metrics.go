package metrics

import (
	"encoding/json"
	"math"
	"strconv"
)

// Dash is how an undefined value is rendered.
const Dash = "—"

// Value is a possibly-undefined float. The zero value is Undefined.
type Value struct {
	f  float64
	ok bool
}

// Undefined is returned when a ratio has a zero or missing denominator.
var Undefined = Value{}

// Of wraps a defined number. NaN and ±Inf are folded into Undefined.
func Of(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Undefined
	}
	return Value{f: f, ok: true}
}

// Defined reports whether v holds a number.
func (v Value) Defined() bool { return v.ok }

// Float returns the number and whether it is defined.
func (v Value) Float() (float64, bool) { return v.f, v.ok }

// Or returns the number, or def when undefined.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.f
}

// String renders with up to 4 significant digits, Dash when undefined.
func (v Value) String() string {
	if !v.ok {
		return Dash
	}
	return strconv.FormatFloat(v.f, 'g', 4, 64)
}

// Fixed renders with a fixed number of decimals, Dash when undefined.
func (v Value) Fixed(decimals int) string {
	if !v.ok {
		return Dash
	}
	return strconv.FormatFloat(v.f, 'f', decimals, 64)
}

// MarshalJSON encodes Undefined as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.f)
}

// Ratio divides num by den. Missing operands or a zero denominator yield Undefined.
func Ratio(num, den Value) Value {
	if !num.ok || !den.ok || den.f == 0 {
		return Undefined
	}
	return Of(num.f / den.f)
}

// Product multiplies a and b, Undefined if either is.
func Product(a, b Value) Value {
	if !a.ok || !b.ok {
		return Undefined
	}
	return Of(a.f * b.f)
}

// CostPerOrder is total cost over total orders (CPO).
func CostPerOrder(totalCost, totalOrders Value) Value { return Ratio(totalCost, totalOrders) }

// WeightPerDistance is kg moved per km travelled.
func WeightPerDistance(totalWeight, totalDistance Value) Value {
	return Ratio(totalWeight, totalDistance)
}

// OrdersPerDriver is total orders over distinct drivers.
func OrdersPerDriver(totalOrders, driverCount Value) Value { return Ratio(totalOrders, driverCount) }

// CostPerDriver is total cost over distinct drivers.
func CostPerDriver(totalCost, driverCount Value) Value { return Ratio(totalCost, driverCount) }

// OrdersPerCost is orders delivered per currency unit spent.
func OrdersPerCost(totalOrders, totalCost Value) Value { return Ratio(totalOrders, totalCost) }
