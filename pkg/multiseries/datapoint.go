package multiseries

import (
	"fmt"

	"github.com/vjranagit/timesync/pkg/timeseries"
)

// DataPoint is an immutable snapshot of one merge step. It stays readable
// after the iterator advanced, but History only works on the most recent
// point.
type DataPoint struct {
	timestamp  int64
	exact      map[int]timeseries.Sample
	previous   map[int]timeseries.Sample
	next       map[int]timeseries.Sample
	aggregated map[int]timeseries.Sample
	owner      *MergeIterator
}

func newDataPoint(t int64, exact map[int]timeseries.Sample, owner *MergeIterator) (*DataPoint, error) {
	if len(exact) == 0 {
		return nil, fmt.Errorf("%w: data point at %d without exact samples",
			timeseries.ErrInvalidArgument, t)
	}
	return &DataPoint{timestamp: t, exact: exact, owner: owner}, nil
}

// Timestamp returns the synchronized timestamp.
func (dp *DataPoint) Timestamp() int64 { return dp.timestamp }

// Owner returns the iterator that produced the data point.
func (dp *DataPoint) Owner() *MergeIterator { return dp.owner }

// Elements returns a copy of the samples whose timestamp equals the data
// point's timestamp, keyed by series index. It is never empty.
func (dp *DataPoint) Elements() map[int]timeseries.Sample {
	out := make(map[int]timeseries.Sample, len(dp.exact))
	for idx, s := range dp.exact {
		out[idx] = s
	}
	return out
}

// Element returns the exact sample of series idx, if any.
func (dp *DataPoint) Element(idx int) (timeseries.Sample, bool) {
	s, ok := dp.exact[idx]
	return s, ok
}

// Has reports whether series idx has an exact sample at this timestamp.
func (dp *DataPoint) Has(idx int) bool {
	_, ok := dp.exact[idx]
	return ok
}

// Previous returns the latest sample of series idx strictly before the
// data point's timestamp.
func (dp *DataPoint) Previous(idx int) (timeseries.Sample, bool, error) {
	if dp.previous == nil {
		return timeseries.Sample{}, false, errNoNeighbours("previous")
	}
	s, ok := dp.previous[idx]
	return s, ok, nil
}

// Next returns the earliest sample of series idx strictly after the data
// point's timestamp.
func (dp *DataPoint) Next(idx int) (timeseries.Sample, bool, error) {
	if dp.next == nil {
		return timeseries.Sample{}, false, errNoNeighbours("next")
	}
	s, ok := dp.next[idx]
	return s, ok, nil
}

// HasNext reports whether series idx has a sample after this data point.
func (dp *DataPoint) HasNext(idx int) (bool, error) {
	if dp.next == nil {
		return false, errNoNeighbours("next")
	}
	_, ok := dp.next[idx]
	return ok, nil
}

// Interpolated returns the exact sample of series idx or, failing that, the
// value interpolated from its neighbours with the series' mode.
func (dp *DataPoint) Interpolated(idx int) (timeseries.Sample, bool, error) {
	if s, ok := dp.exact[idx]; ok {
		return s, true, nil
	}
	if dp.previous == nil {
		return timeseries.Sample{}, false, errNoNeighbours("interpolation")
	}
	s, ok := dp.interpolated(idx)
	return s, ok, nil
}

func (dp *DataPoint) interpolated(idx int) (timeseries.Sample, bool) {
	if s, ok := dp.exact[idx]; ok {
		return s, true
	}
	var prev, next *timeseries.Sample
	if s, ok := dp.previous[idx]; ok {
		prev = &s
	}
	if s, ok := dp.next[idx]; ok {
		next = &s
	}
	return timeseries.Interpolate(prev, next, dp.timestamp, dp.owner.modes[idx])
}

// History returns the data point emitted stepsBack steps before this one.
// It is only valid on the iterator's most recent data point and for
// stepsBack in [1, history depth]. A nil data point without error means the
// iterator has not produced that many points yet.
func (dp *DataPoint) History(stepsBack int) (*DataPoint, error) {
	if dp.owner == nil || dp.owner.current != dp {
		return nil, fmt.Errorf("%w: history requested on a superseded data point",
			timeseries.ErrInvalidState)
	}
	depth := dp.owner.history.Cap()
	if stepsBack < 1 || stepsBack > depth {
		return nil, fmt.Errorf("%w: steps back %d outside [1, %d]",
			timeseries.ErrInvalidState, stepsBack, depth)
	}
	prev, ok := dp.owner.history.Newest(stepsBack)
	if !ok {
		return nil, nil
	}
	return prev, nil
}

// Aggregated returns the running integral or interval average of every
// series at this timestamp, keyed by series index. Values are float64.
func (dp *DataPoint) Aggregated() (map[int]timeseries.Sample, error) {
	if dp.aggregated == nil {
		return nil, fmt.Errorf("%w: iterator was built without integration",
			timeseries.ErrUnsupportedCapability)
	}
	out := make(map[int]timeseries.Sample, len(dp.aggregated))
	for idx, s := range dp.aggregated {
		out[idx] = s
	}
	return out, nil
}

func errNoNeighbours(what string) error {
	return fmt.Errorf("%w: %s values require StoreNeighbours", timeseries.ErrUnsupportedCapability, what)
}
