package blockjit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StaticType is the set of runtime types a value may have at a program point.
// The zero value is Unknown, the top of the lattice: "could be anything".
type StaticType uint8

// Unknown carries no information and is a superset of every other StaticType.
const Unknown StaticType = 0

const (
	Number StaticType = 1 << iota
	Bool
	String
)

const allTypes = Number | Bool | String

// normalize folds the full set into Unknown so that equal sets compare equal.
func (t StaticType) normalize() StaticType {
	t &= allTypes
	if t == allTypes {
		return Unknown
	}
	return t
}

// Union returns the smallest StaticType containing both a and b.
func Union(a, b StaticType) StaticType {
	a, b = a.normalize(), b.normalize()
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return (a | b).normalize()
}

// UnionAll folds Union over types. An empty call returns Unknown.
func UnionAll(types ...StaticType) StaticType {
	if len(types) == 0 {
		return Unknown
	}
	acc := types[0]
	for _, t := range types[1:] {
		acc = Union(acc, t)
	}
	return acc.normalize()
}

// Contains reports whether every type in o is also in t.
func (t StaticType) Contains(o StaticType) bool {
	t, o = t.normalize(), o.normalize()
	if t == Unknown {
		return true
	}
	if o == Unknown {
		return false
	}
	return o&^t == 0
}

// IsUnknown reports whether t is the top element.
func (t StaticType) IsUnknown() bool {
	return t.normalize() == Unknown
}

// IsSingle reports whether t names exactly one concrete type.
func (t StaticType) IsSingle() bool {
	switch t.normalize() {
	case Number, Bool, String:
		return true
	}
	return false
}

func (t StaticType) String() string {
	t = t.normalize()
	if t == Unknown {
		return "unknown"
	}
	parts := make([]string, 0, 3)
	if t&Number != 0 {
		parts = append(parts, "number")
	}
	if t&Bool != 0 {
		parts = append(parts, "bool")
	}
	if t&String != 0 {
		parts = append(parts, "string")
	}
	return strings.Join(parts, "|")
}

// ParseStaticType parses the output of StaticType.String.
func ParseStaticType(s string) (StaticType, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "unknown" {
		return Unknown, nil
	}
	var t StaticType
	for _, part := range strings.Split(s, "|") {
		switch strings.TrimSpace(part) {
		case "number":
			t |= Number
		case "bool", "boolean":
			t |= Bool
		case "string":
			t |= String
		case "unknown":
			return Unknown, nil
		default:
			return Unknown, fmt.Errorf("unknown static type %q", part)
		}
	}
	return t.normalize(), nil
}

// TypeOf resolves the static type of a literal constant.
// A string that is the canonical rendering of a finite number is a Number:
// "3.14" folds, "1.0" does not because 1 renders as "1".
func TypeOf(literal any) StaticType {
	switch v := literal.(type) {
	case bool:
		return Bool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Number
	case string:
		if IsNumericString(v) {
			return Number
		}
		return String
	default:
		return Unknown
	}
}

// IsNumericString reports whether s round-trips through a float64.
func IsNumericString(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return FormatNumber(f) == s
}

// FormatNumber renders f the way the script runtime converts numbers to text:
// plain decimal for 1e-6 <= |f| < 1e21, exponent form otherwise.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + exp[:1] + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
