package timeseries

import (
	"sort"
	"sync"
)

// SampleIterator is a forward-only iterator over samples in strictly
// increasing timestamp order.
type SampleIterator interface {
	// Next moves to the next sample and reports whether one exists.
	Next() bool
	// Current returns the sample the iterator is positioned on.
	Current() Sample
	// Err returns the error that stopped iteration, if any.
	Err() error
}

// Series is a read-only, time keyed sequence of samples with an attached
// interpolation mode. Timestamps are unique within a series.
type Series interface {
	// Value returns the value at t, interpolated with the series' own mode.
	Value(t int64) (Sample, bool)
	// Next returns the first real sample at or after t.
	Next(t int64) (Sample, bool)
	// Previous returns the last real sample at or before t.
	Previous(t int64) (Sample, bool)
	// Values returns the real samples in [start, end).
	Values(start, end int64) []Sample
	IsEmpty() bool
	IsEmptyRange(start, end int64) bool
	// Size may be an upper bound for series backed by several sources.
	Size() int
	SizeRange(start, end int64) int
	// Iterator starts a fresh lazy traversal of [start, end).
	Iterator(start, end int64) SampleIterator
	InterpolationMode() InterpolationMode
}

// MemorySeries is a Series backed by a sorted slice. Adding samples
// replaces the slice, so running iterators keep their view.
type MemorySeries struct {
	mu      sync.RWMutex
	samples []Sample
	mode    InterpolationMode
}

var _ Series = (*MemorySeries)(nil)

// NewMemorySeries creates a series with the given mode and samples. The
// samples need not be sorted; on duplicate timestamps the later argument wins.
func NewMemorySeries(mode InterpolationMode, samples ...Sample) *MemorySeries {
	s := &MemorySeries{mode: mode}
	s.Add(samples...)
	return s
}

// Add inserts samples, replacing existing samples with equal timestamps.
func (s *MemorySeries) Add(samples ...Sample) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byTime := make(map[int64]Sample, len(s.samples)+len(samples))
	for _, sample := range s.samples {
		byTime[sample.Timestamp] = sample
	}
	for _, sample := range samples {
		byTime[sample.Timestamp] = sample
	}
	merged := make([]Sample, 0, len(byTime))
	for _, sample := range byTime {
		merged = append(merged, sample)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	s.samples = merged
}

// SetInterpolationMode changes the interpolation mode.
func (s *MemorySeries) SetInterpolationMode(mode InterpolationMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

func (s *MemorySeries) view() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples
}

// InterpolationMode implements Series.
func (s *MemorySeries) InterpolationMode() InterpolationMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Value implements Series.
func (s *MemorySeries) Value(t int64) (Sample, bool) {
	return ValueAt(s, t, s.InterpolationMode())
}

// Next implements Series.
func (s *MemorySeries) Next(t int64) (Sample, bool) {
	samples := s.view()
	i := lowerBound(samples, t)
	if i == len(samples) {
		return Sample{}, false
	}
	return samples[i], true
}

// Previous implements Series.
func (s *MemorySeries) Previous(t int64) (Sample, bool) {
	samples := s.view()
	i := sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp > t })
	if i == 0 {
		return Sample{}, false
	}
	return samples[i-1], true
}

// Values implements Series.
func (s *MemorySeries) Values(start, end int64) []Sample {
	samples := s.view()
	lo, hi := bounds(samples, start, end)
	out := make([]Sample, hi-lo)
	copy(out, samples[lo:hi])
	return out
}

// IsEmpty implements Series.
func (s *MemorySeries) IsEmpty() bool { return len(s.view()) == 0 }

// IsEmptyRange implements Series.
func (s *MemorySeries) IsEmptyRange(start, end int64) bool { return s.SizeRange(start, end) == 0 }

// Size implements Series.
func (s *MemorySeries) Size() int { return len(s.view()) }

// SizeRange implements Series.
func (s *MemorySeries) SizeRange(start, end int64) int {
	lo, hi := bounds(s.view(), start, end)
	return hi - lo
}

// Iterator implements Series.
func (s *MemorySeries) Iterator(start, end int64) SampleIterator {
	samples := s.view()
	lo, hi := bounds(samples, start, end)
	return NewSliceIterator(samples[lo:hi])
}

func lowerBound(samples []Sample, t int64) int {
	return sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp >= t })
}

func bounds(samples []Sample, start, end int64) (int, int) {
	if end <= start {
		return 0, 0
	}
	return lowerBound(samples, start), lowerBound(samples, end)
}

type sliceIterator struct {
	samples []Sample
	idx     int
}

// NewSliceIterator iterates over samples, which must already be sorted.
func NewSliceIterator(samples []Sample) SampleIterator {
	return &sliceIterator{samples: samples, idx: -1}
}

func (it *sliceIterator) Next() bool {
	if it.idx+1 >= len(it.samples) {
		it.idx = len(it.samples)
		return false
	}
	it.idx++
	return true
}

func (it *sliceIterator) Current() Sample {
	if it.idx < 0 || it.idx >= len(it.samples) {
		return Sample{}
	}
	return it.samples[it.idx]
}

func (it *sliceIterator) Err() error { return nil }
