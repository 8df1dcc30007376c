package table

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a cell holds.
type Kind uint8

const (
	Missing Kind = iota
	String
	Number
	Time
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Time:
		return "time"
	default:
		return "missing"
	}
}

// Value is a single scalar cell. The zero value is Missing.
type Value struct {
	Kind Kind
	S    string
	N    float64
	T    time.Time
}

// missingTokens mirrors the usual NA spellings found in exported sheets.
var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "nat": {}, "#n/a": {},
}

// Str returns a String value, or Missing for blank and NA-like tokens.
func Str(s string) Value {
	s = strings.TrimSpace(s)
	if _, ok := missingTokens[strings.ToLower(s)]; ok {
		return Value{}
	}
	return Value{Kind: String, S: s}
}

// Num returns a Number value.
func Num(f float64) Value { return Value{Kind: Number, N: f} }

// At returns a Time value.
func At(t time.Time) Value { return Value{Kind: Time, T: t} }

// IsMissing reports whether the cell is empty.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// Key is the canonical string form used for grouping and join keys.
// Numbers drop trailing zeros so 1, 1.0 and "1" compare equal.
func (v Value) Key() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.N, 'f', -1, 64)
	case Time:
		return v.T.Format(time.RFC3339)
	case String:
		return v.S
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.Kind == Time {
		return v.T.Format("2006-01-02 15:04:05")
	}
	return v.Key()
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Number:
		return v.N == o.N
	case Time:
		return v.T.Equal(o.T)
	case String:
		return v.S == o.S
	default:
		return true
	}
}
