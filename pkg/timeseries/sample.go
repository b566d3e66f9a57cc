package timeseries

import "fmt"

// Quality flags whether a sample is usable.
type Quality uint8

const (
	Good Quality = iota
	Bad
)

func (q Quality) String() string {
	if q == Good {
		return "GOOD"
	}
	return "BAD"
}

// Worse returns the worse of the two qualities.
func (q Quality) Worse(other Quality) Quality {
	if q == Bad || other == Bad {
		return Bad
	}
	return Good
}

// Sample is a single timestamped value. Samples are ordered solely by
// timestamp.
type Sample struct {
	Timestamp int64
	Value     Value
	Quality   Quality
}

// NewSample creates a sample of good quality.
func NewSample(ts int64, v Value) Sample {
	return Sample{Timestamp: ts, Value: v, Quality: Good}
}

// BadSample creates a sample of bad quality.
func BadSample(ts int64, v Value) Sample {
	return Sample{Timestamp: ts, Value: v, Quality: Bad}
}

// IsGood reports whether the sample has good quality.
func (s Sample) IsGood() bool { return s.Quality == Good }

// WithTimestamp returns a copy of s moved to ts.
func (s Sample) WithTimestamp(ts int64) Sample {
	s.Timestamp = ts
	return s
}

func (s Sample) String() string {
	return fmt.Sprintf("(%d, %s, %s)", s.Timestamp, s.Value, s.Quality)
}
