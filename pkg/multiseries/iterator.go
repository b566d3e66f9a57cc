package multiseries

import (
	"fmt"
	"math"

	"github.com/vjranagit/timesync/pkg/evict"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// MergeIterator produces one DataPoint per distinct timestamp across its
// input series, in strictly increasing order. It is not safe for concurrent
// use.
type MergeIterator struct {
	iters []timeseries.SampleIterator
	modes []timeseries.InterpolationMode
	upper map[int]timeseries.Sample

	// coming holds the next unconsumed sample per series that still has
	// input; last holds the latest consumed sample or lower boundary.
	// Both are replaced, never mutated, on every step.
	coming map[int]timeseries.Sample
	last   map[int]timeseries.Sample

	neighbours bool
	rulers     map[int]struct{}

	integrate bool
	average   bool
	totals    []float64
	lastTime  int64
	started   bool

	history *evict.Queue[*DataPoint]
	current *DataPoint
	pending *DataPoint
	err     error
}

func newMergeIterator(b *Builder, modes []timeseries.InterpolationMode) (*MergeIterator, error) {
	history, err := evict.New[*DataPoint](b.historyDepth)
	if err != nil {
		return nil, err
	}

	it := &MergeIterator{
		iters:      b.iters,
		modes:      modes,
		upper:      make(map[int]timeseries.Sample, len(b.upper)),
		coming:     make(map[int]timeseries.Sample, len(b.iters)),
		last:       make(map[int]timeseries.Sample, len(b.lower)),
		neighbours: b.neighbours || b.integrate,
		integrate:  b.integrate,
		average:    b.average,
		history:    history,
	}
	for idx, s := range b.upper {
		it.upper[idx] = s
	}
	if len(b.rulers) > 0 {
		it.rulers = make(map[int]struct{}, len(b.rulers))
		for _, idx := range b.rulers {
			it.rulers[idx] = struct{}{}
		}
	}
	if it.integrate {
		it.totals = make([]float64, len(b.iters))
	}

	for i := range it.iters {
		if s, ok := it.pull(i); ok {
			it.coming[i] = s
		}
	}
	if it.err != nil {
		return nil, it.err
	}
	for idx, lb := range b.lower {
		if first, ok := it.coming[idx]; !ok || lb.Timestamp < first.Timestamp {
			it.last[idx] = lb
		}
	}
	return it, nil
}

// Size returns the number of input series.
func (it *MergeIterator) Size() int { return len(it.iters) }

// Mode returns the interpolation mode used for series idx.
func (it *MergeIterator) Mode(idx int) timeseries.InterpolationMode { return it.modes[idx] }

// Current returns the most recently produced data point, or nil.
func (it *MergeIterator) Current() *DataPoint { return it.current }

// Err returns the error of an input iterator that stopped the merge.
func (it *MergeIterator) Err() error { return it.err }

// HasNext reports whether Next will produce another data point. With a step
// ruler this reads ahead until a ruler series has an exact sample.
func (it *MergeIterator) HasNext() bool {
	if it.pending != nil {
		return true
	}
	if it.rulers == nil {
		return it.err == nil && len(it.coming) > 0
	}
	it.pending = it.nextRuled()
	return it.pending != nil
}

// Next produces the next data point. It returns ErrExhausted once all
// inputs are consumed, or the input error that stopped the merge.
func (it *MergeIterator) Next() (*DataPoint, error) {
	var dp *DataPoint
	switch {
	case it.pending != nil:
		dp, it.pending = it.pending, nil
	case it.rulers != nil:
		dp = it.nextRuled()
	default:
		dp = it.advance()
	}
	if dp == nil {
		if it.err != nil {
			return nil, it.err
		}
		return nil, fmt.Errorf("%w: no further synchronized timestamp", timeseries.ErrExhausted)
	}

	if it.current != nil {
		it.history.Push(it.current)
	}
	it.current = dp
	return dp, nil
}

func (it *MergeIterator) nextRuled() *DataPoint {
	for {
		dp := it.advance()
		if dp == nil {
			return nil
		}
		for idx := range dp.exact {
			if _, ok := it.rulers[idx]; ok {
				return dp
			}
		}
	}
}

func (it *MergeIterator) pull(idx int) (timeseries.Sample, bool) {
	iter := it.iters[idx]
	if iter.Next() {
		return iter.Current(), true
	}
	if err := iter.Err(); err != nil && it.err == nil {
		it.err = fmt.Errorf("series %d: %w", idx, err)
	}
	return timeseries.Sample{}, false
}

// advance performs one raw merge step. It returns nil when the inputs are
// exhausted or failed.
func (it *MergeIterator) advance() *DataPoint {
	if it.err != nil || len(it.coming) == 0 {
		return nil
	}

	t := int64(math.MaxInt64)
	for _, s := range it.coming {
		if s.Timestamp < t {
			t = s.Timestamp
		}
	}

	exact := make(map[int]timeseries.Sample)
	coming := make(map[int]timeseries.Sample, len(it.coming))
	for idx, s := range it.coming {
		if s.Timestamp != t {
			coming[idx] = s
			continue
		}
		exact[idx] = s
		if next, ok := it.pull(idx); ok {
			coming[idx] = next
		}
	}
	if it.err != nil {
		return nil
	}

	dp, err := newDataPoint(t, exact, it)
	if err != nil {
		it.err = err
		return nil
	}
	if it.neighbours {
		dp.previous = make(map[int]timeseries.Sample, len(it.last))
		for idx, s := range it.last {
			if s.Timestamp < t {
				dp.previous[idx] = s
			}
		}
		dp.next = make(map[int]timeseries.Sample, len(it.iters))
		for idx := range it.iters {
			if s, ok := coming[idx]; ok {
				dp.next[idx] = s
			} else if u, ok := it.upper[idx]; ok && u.Timestamp > t {
				dp.next[idx] = u
			}
		}
	}
	if it.integrate {
		dp.aggregated = it.aggregate(dp)
	}

	last := make(map[int]timeseries.Sample, len(it.last)+len(exact))
	for idx, s := range it.last {
		last[idx] = s
	}
	for idx, s := range exact {
		last[idx] = s
	}
	it.last = last
	it.coming = coming
	return dp
}

// aggregate computes the running integral or interval average of every
// series up to dp. It must run before it.last is updated, so that it.last
// still describes the samples at or before the previous timestamp.
func (it *MergeIterator) aggregate(dp *DataPoint) map[int]timeseries.Sample {
	t := dp.timestamp
	out := make(map[int]timeseries.Sample, len(it.iters))
	for idx := range it.iters {
		if !it.started {
			if !it.average {
				out[idx] = timeseries.NewSample(t, timeseries.Float64Value(0))
				continue
			}
			s, ok := dp.interpolated(idx)
			if ok && s.IsGood() && s.Value.Kind().IsNumeric() {
				out[idx] = timeseries.NewSample(t, timeseries.Float64Value(s.Value.Float64()))
			} else {
				out[idx] = timeseries.BadSample(t, timeseries.Float64Value(math.NaN()))
			}
			continue
		}

		var a, b *timeseries.Sample
		if s, ok := it.last[idx]; ok && s.Timestamp <= it.lastTime {
			a = &s
		}
		if s, ok := dp.exact[idx]; ok {
			b = &s
		} else if s, ok := dp.next[idx]; ok {
			b = &s
		}
		piece, ok := timeseries.IntegratePiece(a, b, it.lastTime, t, it.modes[idx])

		switch {
		case it.average && ok:
			out[idx] = timeseries.NewSample(t, timeseries.Float64Value(piece/float64(t-it.lastTime)))
		case it.average:
			out[idx] = timeseries.BadSample(t, timeseries.Float64Value(math.NaN()))
		case ok:
			it.totals[idx] += piece
			out[idx] = timeseries.NewSample(t, timeseries.Float64Value(it.totals[idx]))
		default:
			out[idx] = timeseries.BadSample(t, timeseries.Float64Value(it.totals[idx]))
		}
	}
	it.started = true
	it.lastTime = t
	return out
}
