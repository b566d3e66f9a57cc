package timeseries

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the type carried by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFloat32
	KindFloat64
	KindInt32
	KindInt64
	KindString
	KindBool
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindString:  "string",
	KindBool:    "bool",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsNumeric reports whether values of this kind can be interpolated and
// integrated.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindFloat32, KindFloat64, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsFloat reports whether the kind is a floating point kind.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// ParseKind parses the lower case kind name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if k != KindInvalid && name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: unknown value kind %q", ErrInvalidArgument, s)
}

// Value is a tagged variant holding one of the supported value kinds. The
// zero Value has KindInvalid.
type Value struct {
	kind Kind
	num  float64
	i    int64
	str  string
}

func Float32Value(v float32) Value { return Value{kind: KindFloat32, num: float64(v)} }
func Float64Value(v float64) Value { return Value{kind: KindFloat64, num: v} }
func Int32Value(v int32) Value     { return Value{kind: KindInt32, i: int64(v)} }
func Int64Value(v int64) Value     { return Value{kind: KindInt64, i: v} }
func StringValue(v string) Value   { return Value{kind: KindString, str: v} }

func BoolValue(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// Float64 returns the value as float64. Strings are parsed; unparseable
// strings and invalid values yield NaN.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat32, KindFloat64:
		return v.num
	case KindInt32, KindInt64, KindBool:
		return float64(v.i)
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// Int64 returns the value as int64. Floats are truncated, NaN becomes 0.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindFloat32, KindFloat64:
		if math.IsNaN(v.num) {
			return 0
		}
		return int64(v.num)
	case KindInt32, KindInt64, KindBool:
		return v.i
	case KindString:
		i, err := strconv.ParseInt(v.str, 10, 64)
		if err != nil {
			return int64(v.Float64())
		}
		return i
	}
	return 0
}

// Bool returns the value as a bool; numbers are true when non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindString:
		b, _ := strconv.ParseBool(v.str)
		return b
	case KindFloat32, KindFloat64:
		return v.num != 0 && !math.IsNaN(v.num)
	}
	return v.i != 0
}

// String returns the textual representation of the value.
func (v Value) String() string {
	switch v.kind {
	case KindFloat32:
		return strconv.FormatFloat(v.num, 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case KindString:
		return v.str
	}
	return "<invalid>"
}

// IsNaN reports whether the value is a floating point NaN.
func (v Value) IsNaN() bool {
	return v.kind.IsFloat() && math.IsNaN(v.num)
}

// Convert returns the value converted to kind k.
func (v Value) Convert(k Kind) Value {
	if v.kind == k {
		return v
	}
	switch k {
	case KindFloat32:
		return Float32Value(float32(v.Float64()))
	case KindFloat64:
		return Float64Value(v.Float64())
	case KindInt32:
		return Int32Value(int32(v.Int64()))
	case KindInt64:
		return Int64Value(v.Int64())
	case KindString:
		return StringValue(v.String())
	case KindBool:
		return BoolValue(v.Bool())
	}
	return Value{}
}

// NullValue returns the replacement used for a missing value of kind k:
// NaN for floats, zero for integers, the empty string and false.
func NullValue(k Kind) Value {
	switch k {
	case KindFloat32:
		return Float32Value(float32(math.NaN()))
	case KindFloat64:
		return Float64Value(math.NaN())
	case KindInt32:
		return Int32Value(0)
	case KindInt64:
		return Int64Value(0)
	case KindString:
		return StringValue("")
	case KindBool:
		return BoolValue(false)
	}
	return Value{}
}

// FromFloat64 builds a value of kind k from a float64, rounding for integer
// kinds.
func FromFloat64(k Kind, f float64) Value {
	switch k {
	case KindFloat32:
		return Float32Value(float32(f))
	case KindFloat64:
		return Float64Value(f)
	case KindInt32:
		if math.IsNaN(f) {
			return Int32Value(0)
		}
		return Int32Value(int32(math.Round(f)))
	case KindInt64:
		if math.IsNaN(f) {
			return Int64Value(0)
		}
		return Int64Value(int64(math.Round(f)))
	}
	return Float64Value(f).Convert(k)
}
