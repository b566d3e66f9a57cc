package timeseries

import (
	"fmt"
	"math"
	"strings"
)

// InterpolationMode defines how a value is synthesized at a time without an
// exact sample.
type InterpolationMode uint8

const (
	// None yields values at exact sample timestamps only.
	None InterpolationMode = iota
	// Steps holds the last known value forward.
	Steps
	// Linear interpolates between the two bracketing samples.
	Linear
	// Nearest takes the bracketing sample closest in time. Exactly halfway
	// between two samples the later one wins.
	Nearest
)

var modeNames = [...]string{"none", "steps", "linear", "nearest"}

func (m InterpolationMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseInterpolationMode parses a mode name, case insensitive.
func ParseInterpolationMode(s string) (InterpolationMode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return InterpolationMode(i), nil
		}
	}
	return None, fmt.Errorf("%w: unknown interpolation mode %q", ErrInvalidArgument, s)
}

// UnmarshalText lets modes be decoded from configuration files.
func (m *InterpolationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseInterpolationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m InterpolationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Interpolate computes the value at t from the nearest real samples at or
// before t (prev) and at or after t (next). Either may be nil. The returned
// sample carries timestamp t.
func Interpolate(prev, next *Sample, t int64, mode InterpolationMode) (Sample, bool) {
	if prev != nil && prev.Timestamp == t {
		return *prev, true
	}
	if next != nil && next.Timestamp == t {
		return *next, true
	}
	switch mode {
	case Steps:
		if prev == nil {
			return Sample{}, false
		}
		return prev.WithTimestamp(t), true
	case Linear:
		if prev == nil || next == nil {
			return Sample{}, false
		}
		kind := prev.Value.Kind()
		if !kind.IsNumeric() {
			return prev.WithTimestamp(t), true
		}
		f := lerp(*prev, *next, t)
		return Sample{
			Timestamp: t,
			Value:     FromFloat64(kind, f),
			Quality:   prev.Quality.Worse(next.Quality),
		}, true
	case Nearest:
		switch {
		case prev == nil && next == nil:
			return Sample{}, false
		case prev == nil:
			return next.WithTimestamp(t), true
		case next == nil:
			return prev.WithTimestamp(t), true
		}
		if next.Timestamp-t <= t-prev.Timestamp {
			return next.WithTimestamp(t), true
		}
		return prev.WithTimestamp(t), true
	}
	return Sample{}, false
}

// ValueAt looks up the value of s at t using mode instead of the series' own
// interpolation mode.
func ValueAt(s Series, t int64, mode InterpolationMode) (Sample, bool) {
	prev, hasPrev := s.Previous(t)
	if hasPrev && prev.Timestamp == t {
		return prev, true
	}
	next, hasNext := s.Next(t)
	return Interpolate(samplePtr(prev, hasPrev), samplePtr(next, hasNext), t, mode)
}

func lerp(a, b Sample, t int64) float64 {
	va, vb := a.Value.Float64(), b.Value.Float64()
	if b.Timestamp == a.Timestamp {
		return va
	}
	return va + (vb-va)*float64(t-a.Timestamp)/float64(b.Timestamp-a.Timestamp)
}

func samplePtr(s Sample, ok bool) *Sample {
	if !ok {
		return nil
	}
	return &s
}

// IntegratePiece integrates over [from, to] a stretch of a series that has
// no real sample strictly inside the interval. a is the last sample at or
// before from, b the first sample at or after to; either may be nil. It
// returns false when the integral cannot be determined: mode None, a
// missing or bad participating sample, or a non-numeric value.
func IntegratePiece(a, b *Sample, from, to int64, mode InterpolationMode) (float64, bool) {
	if to <= from {
		return 0, true
	}
	dt := float64(to - from)
	usable := func(s *Sample) bool {
		return s != nil && s.IsGood() && s.Value.Kind().IsNumeric()
	}
	switch mode {
	case Steps:
		if !usable(a) {
			return 0, false
		}
		return a.Value.Float64() * dt, true
	case Linear:
		if !usable(a) || !usable(b) {
			return 0, false
		}
		return (lerp(*a, *b, from) + lerp(*a, *b, to)) / 2 * dt, true
	case Nearest:
		switch {
		case a == nil && b == nil:
			return 0, false
		case a == nil:
			if !usable(b) {
				return 0, false
			}
			return b.Value.Float64() * dt, true
		case b == nil:
			if !usable(a) {
				return 0, false
			}
			return a.Value.Float64() * dt, true
		}
		mid := float64(a.Timestamp) + float64(b.Timestamp-a.Timestamp)/2
		lo, hi := float64(from), float64(to)
		split := math.Max(lo, math.Min(hi, mid))
		var sum float64
		if split > lo {
			if !usable(a) {
				return 0, false
			}
			sum += a.Value.Float64() * (split - lo)
		}
		if hi > split {
			if !usable(b) {
				return 0, false
			}
			sum += b.Value.Float64() * (hi - split)
		}
		return sum, true
	}
	return 0, false
}

// Integrate computes the definite integral of s over [start, end] with the
// given interpolation mode. The result is in value times timestamp unit.
// It returns false if any part of the range cannot be determined.
func Integrate(s Series, start, end int64, mode InterpolationMode) (float64, bool) {
	if end <= start {
		return 0, true
	}
	prev, hasPrev := s.Previous(start)
	a := samplePtr(prev, hasPrev)
	cursor := start
	var total float64
	it := s.Iterator(start, end)
	for it.Next() {
		cur := it.Current()
		if cur.Timestamp <= start {
			continue
		}
		piece, ok := IntegratePiece(a, &cur, cursor, cur.Timestamp, mode)
		if !ok {
			return 0, false
		}
		total += piece
		a = &cur
		cursor = cur.Timestamp
	}
	if it.Err() != nil {
		return 0, false
	}
	next, hasNext := s.Next(end)
	piece, ok := IntegratePiece(a, samplePtr(next, hasNext), cursor, end, mode)
	if !ok {
		return 0, false
	}
	return total + piece, true
}
