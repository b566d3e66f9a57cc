package combine

import (
	"math"
	"strings"

	"github.com/vjranagit/timesync/pkg/timeseries"
)

// ReduceFunc combines the values of all constituents at one instant. The
// slice always has one entry per constituent, converted to the combiner's
// kind, with missing values replaced by timeseries.NullValue.
type ReduceFunc func(values []timeseries.Value) timeseries.Value

// Identity returns the first value.
func Identity(values []timeseries.Value) timeseries.Value {
	return values[0]
}

// Sum adds numeric values, skipping NaN, and concatenates strings. The sum
// of only NaN values is NaN.
func Sum(values []timeseries.Value) timeseries.Value {
	kind := values[0].Kind()
	switch {
	case kind.IsFloat():
		sum, n := floatSum(values)
		if n == 0 {
			return timeseries.NullValue(kind)
		}
		return timeseries.FromFloat64(kind, sum)
	case kind.IsNumeric():
		var sum int64
		for _, v := range values {
			sum += v.Int64()
		}
		return timeseries.Int64Value(sum).Convert(kind)
	}
	return Concat("")(values)
}

// Average computes the arithmetic mean. Floats skip NaN values, integers
// are rounded. Non-numeric kinds yield the first value.
func Average(values []timeseries.Value) timeseries.Value {
	kind := values[0].Kind()
	switch {
	case kind.IsFloat():
		sum, n := floatSum(values)
		if n == 0 {
			return timeseries.NullValue(kind)
		}
		return timeseries.FromFloat64(kind, sum/float64(n))
	case kind.IsNumeric():
		var sum int64
		for _, v := range values {
			sum += v.Int64()
		}
		return timeseries.FromFloat64(kind, float64(sum)/float64(len(values)))
	}
	return values[0]
}

// Min returns the smallest value; NaN is skipped, strings compare
// lexicographically.
func Min(values []timeseries.Value) timeseries.Value {
	return pick(values, less)
}

// Max returns the largest value; NaN is skipped, strings compare
// lexicographically.
func Max(values []timeseries.Value) timeseries.Value {
	return pick(values, func(a, b timeseries.Value) bool { return less(b, a) })
}

// Concat joins the textual form of all values with sep.
func Concat(sep string) ReduceFunc {
	return func(values []timeseries.Value) timeseries.Value {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v.String()
		}
		return timeseries.StringValue(strings.Join(parts, sep)).Convert(values[0].Kind())
	}
}

// ReduceFuncByName resolves the reductions available to configuration and
// the command line.
func ReduceFuncByName(name string) (ReduceFunc, bool) {
	switch strings.ToLower(name) {
	case "sum":
		return Sum, true
	case "avg", "average", "mean":
		return Average, true
	case "min":
		return Min, true
	case "max":
		return Max, true
	case "first", "identity":
		return Identity, true
	case "concat":
		return Concat(","), true
	}
	return nil, false
}

func floatSum(values []timeseries.Value) (float64, int) {
	var (
		sum float64
		n   int
	)
	for _, v := range values {
		f := v.Float64()
		if math.IsNaN(f) {
			continue
		}
		sum += f
		n++
	}
	return sum, n
}

func less(a, b timeseries.Value) bool {
	switch {
	case a.Kind().IsFloat():
		return a.Float64() < b.Float64()
	case a.Kind().IsNumeric():
		return a.Int64() < b.Int64()
	}
	return a.String() < b.String()
}

func pick(values []timeseries.Value, better func(a, b timeseries.Value) bool) timeseries.Value {
	var (
		best  timeseries.Value
		found bool
	)
	for _, v := range values {
		if v.IsNaN() {
			continue
		}
		if !found || better(v, best) {
			best, found = v, true
		}
	}
	if !found {
		return values[0]
	}
	return best
}
