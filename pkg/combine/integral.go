package combine

import (
	"math"

	"github.com/vjranagit/timesync/pkg/multiseries"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// IntegralSeries is the running integral of a numeric series from a fixed
// origin. Its value at the origin is zero and it has no value before it.
// Once an interval cannot be integrated every later value is bad.
type IntegralSeries struct {
	source timeseries.Series
	origin int64
	mode   timeseries.InterpolationMode
	opts   options
}

var _ timeseries.Series = (*IntegralSeries)(nil)

// NewIntegralSeries integrates s starting at origin, using the interpolation
// mode of s unless WithGlobalMode is given.
func NewIntegralSeries(s timeseries.Series, origin int64, opts ...Option) *IntegralSeries {
	is := &IntegralSeries{source: s, origin: origin, mode: s.InterpolationMode()}
	for _, opt := range opts {
		opt(&is.opts)
	}
	if is.opts.hasGlobal {
		is.mode = is.opts.globalMode
	}
	return is
}

// Origin returns the timestamp at which the integral is zero.
func (is *IntegralSeries) Origin() int64 { return is.origin }

// InterpolationMode implements timeseries.Series.
func (is *IntegralSeries) InterpolationMode() timeseries.InterpolationMode {
	if is.opts.hasOutput {
		return is.opts.outputMode
	}
	return timeseries.Linear
}

// Value implements timeseries.Series.
func (is *IntegralSeries) Value(t int64) (timeseries.Sample, bool) {
	if t < is.origin {
		return timeseries.Sample{}, false
	}
	total, ok := timeseries.Integrate(is.source, is.origin, t, is.mode)
	if !ok {
		return timeseries.BadSample(t, timeseries.Float64Value(math.NaN())), true
	}
	return timeseries.NewSample(t, timeseries.Float64Value(total)), true
}

// Next implements timeseries.Series.
func (is *IntegralSeries) Next(t int64) (timeseries.Sample, bool) {
	if t <= is.origin {
		return is.Value(is.origin)
	}
	s, ok := is.source.Next(t)
	if !ok {
		return timeseries.Sample{}, false
	}
	return is.Value(s.Timestamp)
}

// Previous implements timeseries.Series.
func (is *IntegralSeries) Previous(t int64) (timeseries.Sample, bool) {
	if t < is.origin {
		return timeseries.Sample{}, false
	}
	if s, ok := is.source.Previous(t); ok && s.Timestamp > is.origin {
		return is.Value(s.Timestamp)
	}
	return is.Value(is.origin)
}

// Values implements timeseries.Series.
func (is *IntegralSeries) Values(start, end int64) []timeseries.Sample {
	var out []timeseries.Sample
	it := is.Iterator(start, end)
	for it.Next() {
		out = append(out, it.Current())
	}
	return out
}

// IsEmpty implements timeseries.Series. The origin always carries a value.
func (is *IntegralSeries) IsEmpty() bool { return false }

// IsEmptyRange implements timeseries.Series.
func (is *IntegralSeries) IsEmptyRange(start, end int64) bool {
	return is.SizeRange(start, end) == 0
}

// Size implements timeseries.Series.
func (is *IntegralSeries) Size() int { return is.SizeRange(math.MinInt64, math.MaxInt64) }

// SizeRange implements timeseries.Series.
func (is *IntegralSeries) SizeRange(start, end int64) int {
	if end <= is.origin || end <= start {
		return 0
	}
	from := start
	n := 0
	if start <= is.origin {
		from = is.origin
		n = 1
		if s, ok := is.source.Previous(is.origin); ok && s.Timestamp == is.origin {
			n = 0
		}
	}
	return n + is.source.SizeRange(from, end)
}

// Iterator implements timeseries.Series. It emits the integral at the origin
// and at every source sample after it, restricted to [start, end).
func (is *IntegralSeries) Iterator(start, end int64) timeseries.SampleIterator {
	if end <= is.origin || end <= start {
		return timeseries.NewSliceIterator(nil)
	}

	ticks := timeseries.NewMemorySeries(timeseries.None,
		timeseries.NewSample(is.origin, timeseries.Float64Value(0)))
	lower := make(map[int]timeseries.Sample)
	if is.origin > math.MinInt64 {
		if s, ok := is.source.Previous(is.origin - 1); ok {
			lower[0] = s
		}
	}
	upper := make(map[int]timeseries.Sample)
	if s, ok := is.source.Next(end); ok {
		upper[0] = s
	}

	merge, err := multiseries.NewBuilder([]timeseries.SampleIterator{
		is.source.Iterator(is.origin, end),
		ticks.Iterator(is.origin, end),
	}).
		SetModes([]timeseries.InterpolationMode{is.mode, timeseries.None}).
		SetLowerBoundaries(lower).
		SetUpperBoundaries(upper).
		DoIntegrate(false).
		Build()
	return &integralIterator{merge: merge, start: start, err: err}
}

type integralIterator struct {
	merge   *multiseries.MergeIterator
	start   int64
	broken  bool
	current timeseries.Sample
	err     error
}

func (it *integralIterator) Next() bool {
	for it.err == nil {
		if !it.merge.HasNext() {
			it.err = it.merge.Err()
			return false
		}
		dp, err := it.merge.Next()
		if err != nil {
			it.err = err
			return false
		}
		agg, err := dp.Aggregated()
		if err != nil {
			it.err = err
			return false
		}
		s := agg[0]
		if !s.IsGood() {
			it.broken = true
		}
		if dp.Timestamp() < it.start {
			continue
		}
		if it.broken {
			s = timeseries.BadSample(s.Timestamp, timeseries.Float64Value(math.NaN()))
		}
		it.current = s
		return true
	}
	return false
}

func (it *integralIterator) Current() timeseries.Sample { return it.current }

func (it *integralIterator) Err() error { return it.err }
