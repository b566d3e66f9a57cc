// Package multiseries synchronizes several independently sampled series
// into one chronologically ordered stream of data points.
package multiseries

import (
	"fmt"

	"github.com/vjranagit/timesync/pkg/timeseries"
)

// Builder collects the settings of a MergeIterator. Setters return the
// builder so calls can be chained; validation happens in Build.
type Builder struct {
	iters        []timeseries.SampleIterator
	modes        []timeseries.InterpolationMode
	globalMode   timeseries.InterpolationMode
	hasGlobal    bool
	lower        map[int]timeseries.Sample
	upper        map[int]timeseries.Sample
	historyDepth int
	neighbours   bool
	rulers       []int
	integrate    bool
	average      bool
}

// NewBuilder starts a builder over the given sample iterators. The i-th
// iterator is addressed by series index i in all data points.
func NewBuilder(iters []timeseries.SampleIterator) *Builder {
	return &Builder{iters: iters}
}

// SetGlobalMode forces one interpolation mode for all series, overriding
// SetModes.
func (b *Builder) SetGlobalMode(mode timeseries.InterpolationMode) *Builder {
	b.globalMode = mode
	b.hasGlobal = true
	return b
}

// SetModes sets one interpolation mode per series.
func (b *Builder) SetModes(modes []timeseries.InterpolationMode) *Builder {
	b.modes = modes
	return b
}

// SetLowerBoundaries registers virtual samples used as the previous value
// of a series before its first real sample.
func (b *Builder) SetLowerBoundaries(values map[int]timeseries.Sample) *Builder {
	b.lower = values
	return b
}

// SetUpperBoundaries registers virtual samples used as the next value of a
// series after its last real sample.
func (b *Builder) SetUpperBoundaries(values map[int]timeseries.Sample) *Builder {
	b.upper = values
	return b
}

// SetHistoryDepth sets how many previously emitted data points stay
// reachable through DataPoint.History. Zero disables the history.
func (b *Builder) SetHistoryDepth(depth int) *Builder {
	b.historyDepth = depth
	return b
}

// StoreNeighbours makes data points carry the previous and next sample of
// every series.
func (b *Builder) StoreNeighbours(enabled bool) *Builder {
	b.neighbours = enabled
	return b
}

// SetStepRuler restricts the output to timestamps where at least one of the
// given series has an exact sample.
func (b *Builder) SetStepRuler(indices ...int) *Builder {
	b.rulers = indices
	return b
}

// DoIntegrate makes every data point carry the running integral of each
// series, or the average over the last interval if average is true.
func (b *Builder) DoIntegrate(average bool) *Builder {
	b.integrate = true
	b.average = average
	return b
}

// Build validates the settings and creates the iterator. The first sample
// of every input is read here.
func (b *Builder) Build() (*MergeIterator, error) {
	n := len(b.iters)
	if len(b.rulers) > 0 && b.integrate {
		return nil, fmt.Errorf("%w: step ruler cannot be combined with integration",
			timeseries.ErrUnsupportedCapability)
	}
	if !b.hasGlobal && b.modes != nil && len(b.modes) != n {
		return nil, fmt.Errorf("%w: got %d interpolation modes for %d series",
			timeseries.ErrInvalidArgument, len(b.modes), n)
	}
	for _, idx := range b.rulers {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: step ruler index %d out of range [0, %d)",
				timeseries.ErrInvalidArgument, idx, n)
		}
	}
	for _, boundaries := range []map[int]timeseries.Sample{b.lower, b.upper} {
		for idx := range boundaries {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("%w: boundary index %d out of range [0, %d)",
					timeseries.ErrInvalidArgument, idx, n)
			}
		}
	}

	modes := make([]timeseries.InterpolationMode, n)
	for i := range modes {
		switch {
		case b.hasGlobal:
			modes[i] = b.globalMode
		case b.modes != nil:
			modes[i] = b.modes[i]
		default:
			modes[i] = timeseries.None
		}
	}

	return newMergeIterator(b, modes)
}
