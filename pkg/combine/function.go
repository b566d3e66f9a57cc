// Package combine builds derived series on top of the synchronizing merge
// iterator.
package combine

import (
	"fmt"
	"math"

	"github.com/vjranagit/timesync/pkg/multiseries"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// Option configures a derived series.
type Option func(*options)

type options struct {
	globalMode timeseries.InterpolationMode
	hasGlobal  bool
	outputMode timeseries.InterpolationMode
	hasOutput  bool
	ignoreGaps bool
	now        int64
	hasNow     bool
}

// WithGlobalMode interpolates every constituent with mode instead of its
// own interpolation mode.
func WithGlobalMode(mode timeseries.InterpolationMode) Option {
	return func(o *options) {
		o.globalMode = mode
		o.hasGlobal = true
	}
}

// WithOutputMode sets the interpolation mode reported by the derived series.
func WithOutputMode(mode timeseries.InterpolationMode) Option {
	return func(o *options) {
		o.outputMode = mode
		o.hasOutput = true
	}
}

// WithIgnoreGaps keeps the combined quality good when a constituent has no
// value or a bad one. The null replacement is still passed to the reduction.
func WithIgnoreGaps(ignore bool) Option {
	return func(o *options) { o.ignoreGaps = ignore }
}

// WithNow sets the current time. Constituents whose last sample lies before
// now are treated as holding that value until now.
func WithNow(now int64) Option {
	return func(o *options) {
		o.now = now
		o.hasNow = true
	}
}

// FunctionSeries is a virtual series whose value at t is the reduction of
// all constituents interpolated to t.
type FunctionSeries struct {
	constituents []timeseries.Series
	modes        []timeseries.InterpolationMode
	kind         timeseries.Kind
	reduce       ReduceFunc
	opts         options
}

var _ timeseries.Series = (*FunctionSeries)(nil)

// NewFunctionSeries creates a combined series of the given kind. Only
// float32, float64, int32, int64 and string kinds are supported.
func NewFunctionSeries(
	constituents []timeseries.Series,
	kind timeseries.Kind,
	reduce ReduceFunc,
	opts ...Option,
) (*FunctionSeries, error) {
	switch kind {
	case timeseries.KindFloat32, timeseries.KindFloat64,
		timeseries.KindInt32, timeseries.KindInt64, timeseries.KindString:
	default:
		return nil, fmt.Errorf("%w: function series does not support %s values",
			timeseries.ErrInvalidArgument, kind)
	}
	if len(constituents) == 0 {
		return nil, fmt.Errorf("%w: function series needs at least one constituent",
			timeseries.ErrInvalidArgument)
	}
	if reduce == nil {
		return nil, fmt.Errorf("%w: nil reduce function", timeseries.ErrInvalidArgument)
	}

	f := &FunctionSeries{
		constituents: constituents,
		modes:        make([]timeseries.InterpolationMode, len(constituents)),
		kind:         kind,
		reduce:       reduce,
	}
	for _, opt := range opts {
		opt(&f.opts)
	}
	for i, c := range constituents {
		if f.opts.hasGlobal {
			f.modes[i] = f.opts.globalMode
		} else {
			f.modes[i] = c.InterpolationMode()
		}
	}
	return f, nil
}

// Kind returns the value kind of the combined samples.
func (f *FunctionSeries) Kind() timeseries.Kind { return f.kind }

// InterpolationMode implements timeseries.Series. Unless set explicitly it
// is the forced global mode, the mode shared by all constituents, or None.
func (f *FunctionSeries) InterpolationMode() timeseries.InterpolationMode {
	if f.opts.hasOutput {
		return f.opts.outputMode
	}
	for _, m := range f.modes[1:] {
		if m != f.modes[0] {
			return timeseries.None
		}
	}
	return f.modes[0]
}

// Value implements timeseries.Series.
func (f *FunctionSeries) Value(t int64) (timeseries.Sample, bool) {
	return f.combine(t, func(idx int) (timeseries.Sample, bool) {
		return f.constituentAt(idx, t)
	})
}

func (f *FunctionSeries) constituentAt(idx int, t int64) (timeseries.Sample, bool) {
	c := f.constituents[idx]
	prev, hasPrev := c.Previous(t)
	if hasPrev && prev.Timestamp == t {
		return prev, true
	}
	var prevPtr, nextPtr *timeseries.Sample
	if hasPrev {
		prevPtr = &prev
	}
	if next, ok := c.Next(t); ok {
		nextPtr = &next
	} else if held, ok := f.heldUntilNow(c); ok && held.Timestamp >= t {
		nextPtr = &held
	}
	return timeseries.Interpolate(prevPtr, nextPtr, t, f.modes[idx])
}

// heldUntilNow returns the last sample of c moved to the configured current
// time, if c ends before it.
func (f *FunctionSeries) heldUntilNow(c timeseries.Series) (timeseries.Sample, bool) {
	if !f.opts.hasNow {
		return timeseries.Sample{}, false
	}
	last, ok := c.Previous(f.opts.now)
	if !ok || last.Timestamp >= f.opts.now {
		return timeseries.Sample{}, false
	}
	if _, later := c.Next(f.opts.now); later {
		return timeseries.Sample{}, false
	}
	return last.WithTimestamp(f.opts.now), true
}

// combine reduces the constituent values returned by lookup at t.
func (f *FunctionSeries) combine(t int64, lookup func(idx int) (timeseries.Sample, bool)) (timeseries.Sample, bool) {
	values := make([]timeseries.Value, len(f.constituents))
	quality := timeseries.Good
	found := false
	for idx := range f.constituents {
		s, ok := lookup(idx)
		if ok {
			found = true
		}
		if !ok || !s.IsGood() {
			if !f.opts.ignoreGaps {
				quality = timeseries.Bad
			}
			values[idx] = timeseries.NullValue(f.kind)
			continue
		}
		values[idx] = s.Value.Convert(f.kind)
	}
	if !found {
		return timeseries.Sample{}, false
	}
	result := f.reduce(values).Convert(f.kind)
	if result.IsNaN() {
		quality = timeseries.Bad
	}
	return timeseries.Sample{Timestamp: t, Value: result, Quality: quality}, true
}

// Next implements timeseries.Series. It returns the combined value at the
// first constituent sample at or after t.
func (f *FunctionSeries) Next(t int64) (timeseries.Sample, bool) {
	ts, ok := int64(math.MaxInt64), false
	for _, c := range f.constituents {
		if s, has := c.Next(t); has && s.Timestamp <= ts {
			ts, ok = s.Timestamp, true
		}
	}
	if !ok {
		return timeseries.Sample{}, false
	}
	return f.Value(ts)
}

// Previous implements timeseries.Series. It returns the combined value at
// the last constituent sample at or before t.
func (f *FunctionSeries) Previous(t int64) (timeseries.Sample, bool) {
	ts, ok := int64(math.MinInt64), false
	for _, c := range f.constituents {
		if s, has := c.Previous(t); has && s.Timestamp >= ts {
			ts, ok = s.Timestamp, true
		}
	}
	if !ok {
		return timeseries.Sample{}, false
	}
	return f.Value(ts)
}

// Values implements timeseries.Series.
func (f *FunctionSeries) Values(start, end int64) []timeseries.Sample {
	var out []timeseries.Sample
	it := f.Iterator(start, end)
	for it.Next() {
		out = append(out, it.Current())
	}
	return out
}

// IsEmpty implements timeseries.Series.
func (f *FunctionSeries) IsEmpty() bool {
	for _, c := range f.constituents {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// IsEmptyRange implements timeseries.Series.
func (f *FunctionSeries) IsEmptyRange(start, end int64) bool {
	for _, c := range f.constituents {
		if !c.IsEmptyRange(start, end) {
			return false
		}
	}
	return true
}

// Size implements timeseries.Series. Shared timestamps are counted once per
// constituent, so the result is an upper bound.
func (f *FunctionSeries) Size() int {
	var n int
	for _, c := range f.constituents {
		n += c.Size()
	}
	return n
}

// SizeRange implements timeseries.Series; it is an upper bound like Size.
func (f *FunctionSeries) SizeRange(start, end int64) int {
	var n int
	for _, c := range f.constituents {
		n += c.SizeRange(start, end)
	}
	return n
}

// Iterator implements timeseries.Series. The returned iterator merges the
// constituents and emits one combined sample per synchronized timestamp.
func (f *FunctionSeries) Iterator(start, end int64) timeseries.SampleIterator {
	iters := make([]timeseries.SampleIterator, len(f.constituents))
	lower := make(map[int]timeseries.Sample)
	upper := make(map[int]timeseries.Sample)
	for idx, c := range f.constituents {
		iters[idx] = c.Iterator(start, end)
		if start > math.MinInt64 {
			if s, ok := c.Previous(start - 1); ok {
				lower[idx] = s
			}
		}
		if s, ok := c.Next(end); ok {
			upper[idx] = s
		} else if s, ok := f.heldUntilNow(c); ok {
			upper[idx] = s
		}
	}

	merge, err := multiseries.NewBuilder(iters).
		SetModes(f.modes).
		SetLowerBoundaries(lower).
		SetUpperBoundaries(upper).
		StoreNeighbours(true).
		Build()
	return &functionIterator{f: f, merge: merge, err: err}
}

type functionIterator struct {
	f       *FunctionSeries
	merge   *multiseries.MergeIterator
	current timeseries.Sample
	err     error
}

func (it *functionIterator) Next() bool {
	if it.err != nil || !it.merge.HasNext() {
		if it.err == nil {
			it.err = it.merge.Err()
		}
		return false
	}
	dp, err := it.merge.Next()
	if err != nil {
		it.err = err
		return false
	}
	s, ok := it.f.combine(dp.Timestamp(), func(idx int) (timeseries.Sample, bool) {
		s, ok, _ := dp.Interpolated(idx)
		return s, ok
	})
	if !ok {
		// unreachable: every data point has at least one exact sample
		it.err = fmt.Errorf("%w: no value at %d", timeseries.ErrInvalidState, dp.Timestamp())
		return false
	}
	it.current = s
	return true
}

func (it *functionIterator) Current() timeseries.Sample { return it.current }

func (it *functionIterator) Err() error { return it.err }
