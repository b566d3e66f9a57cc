package combine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

func f64(ts int64, v float64) timeseries.Sample {
	return timeseries.NewSample(ts, timeseries.Float64Value(v))
}

func collect(t *testing.T, it timeseries.SampleIterator) []timeseries.Sample {
	var out []timeseries.Sample
	for it.Next() {
		out = append(out, it.Current())
	}
	require.NoError(t, it.Err())
	return out
}

func scenario() []timeseries.Series {
	a := timeseries.NewMemorySeries(timeseries.Linear, f64(0, 10), f64(10, 20))
	b := timeseries.NewMemorySeries(timeseries.Steps, f64(5, 100))
	return []timeseries.Series{a, b}
}

func TestFunctionSeriesAverageScenario(t *testing.T) {
	fs, err := NewFunctionSeries(scenario(), timeseries.KindFloat64, Average)
	require.NoError(t, err)

	s, ok := fs.Value(5)
	require.True(t, ok)
	assert.Equal(t, timeseries.Good, s.Quality)
	assert.InDelta(t, 57.5, s.Value.Float64(), 1e-9)

	samples := collect(t, fs.Iterator(0, 11))
	require.Len(t, samples, 3)

	expected := []struct {
		ts      int64
		value   float64
		quality timeseries.Quality
	}{
		{0, 10, timeseries.Bad}, // b has no value before its first sample
		{5, 57.5, timeseries.Good},
		{10, 60, timeseries.Good},
	}
	for i, e := range expected {
		assert.Equal(t, e.ts, samples[i].Timestamp)
		assert.InDelta(t, e.value, samples[i].Value.Float64(), 1e-9, "sample %d", i)
		assert.Equal(t, e.quality, samples[i].Quality, "sample %d", i)
	}
}

func TestFunctionSeriesIteratorMatchesValue(t *testing.T) {
	constituents := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Linear, f64(0, 1), f64(4, 9), f64(12, -3)),
		timeseries.NewMemorySeries(timeseries.Nearest, f64(1, 5), f64(6, 7), f64(13, 0)),
		timeseries.NewMemorySeries(timeseries.Steps, f64(-2, 2), f64(8, 4)),
	}
	fs, err := NewFunctionSeries(constituents, timeseries.KindFloat64, Sum)
	require.NoError(t, err)

	samples := collect(t, fs.Iterator(0, 13))
	require.Equal(t, 6, len(samples))
	for _, s := range samples {
		v, ok := fs.Value(s.Timestamp)
		require.True(t, ok)
		assert.Equal(t, v, s, "t=%d", s.Timestamp)
	}
}

func TestFunctionSeriesIdentity(t *testing.T) {
	src := timeseries.NewMemorySeries(timeseries.Linear, f64(0, 0), f64(10, 5), f64(20, -5))
	fs, err := NewFunctionSeries([]timeseries.Series{src}, timeseries.KindFloat64, Identity)
	require.NoError(t, err)

	for ts := int64(0); ts <= 20; ts++ {
		expected, ok := src.Value(ts)
		require.True(t, ok)
		actual, ok := fs.Value(ts)
		require.True(t, ok)
		assert.Equal(t, expected, actual, "t=%d", ts)
	}
	assert.Equal(t, src.Values(0, 30), fs.Values(0, 30))
}

func TestFunctionSeriesRejectsUnsupportedKind(t *testing.T) {
	_, err := NewFunctionSeries(scenario(), timeseries.KindBool, Identity)
	require.ErrorIs(t, err, timeseries.ErrInvalidArgument)

	_, err = NewFunctionSeries(nil, timeseries.KindFloat64, Sum)
	require.ErrorIs(t, err, timeseries.ErrInvalidArgument)

	_, err = NewFunctionSeries(scenario(), timeseries.KindFloat64, nil)
	require.ErrorIs(t, err, timeseries.ErrInvalidArgument)
}

func TestFunctionSeriesIgnoreGaps(t *testing.T) {
	fs, err := NewFunctionSeries(scenario(), timeseries.KindFloat64, Average, WithIgnoreGaps(true))
	require.NoError(t, err)

	s, ok := fs.Value(0)
	require.True(t, ok)
	assert.Equal(t, timeseries.Good, s.Quality)
	assert.InDelta(t, 10.0, s.Value.Float64(), 1e-9)
}

func TestFunctionSeriesBadConstituent(t *testing.T) {
	a := timeseries.NewMemorySeries(timeseries.Steps, f64(0, 1))
	b := timeseries.NewMemorySeries(timeseries.Steps, timeseries.BadSample(0, timeseries.Float64Value(50)))
	fs, err := NewFunctionSeries([]timeseries.Series{a, b}, timeseries.KindFloat64, Sum)
	require.NoError(t, err)

	s, ok := fs.Value(3)
	require.True(t, ok)
	assert.Equal(t, timeseries.Bad, s.Quality)
	// the bad value is replaced by NaN, which the sum skips
	assert.InDelta(t, 1.0, s.Value.Float64(), 1e-9)
}

func TestFunctionSeriesNaNResultIsBad(t *testing.T) {
	a := timeseries.NewMemorySeries(timeseries.Steps, f64(0, math.NaN()))
	fs, err := NewFunctionSeries([]timeseries.Series{a}, timeseries.KindFloat64, Sum, WithIgnoreGaps(true))
	require.NoError(t, err)

	s, ok := fs.Value(0)
	require.True(t, ok)
	assert.Equal(t, timeseries.Bad, s.Quality)
	assert.True(t, s.Value.IsNaN())
}

func TestFunctionSeriesNoSample(t *testing.T) {
	fs, err := NewFunctionSeries(scenario(), timeseries.KindFloat64, Sum)
	require.NoError(t, err)

	_, ok := fs.Value(-5)
	assert.False(t, ok)
	_, ok = fs.Previous(-5)
	assert.False(t, ok)
	_, ok = fs.Next(11)
	assert.False(t, ok)
}

func TestFunctionSeriesNextPrevious(t *testing.T) {
	fs, err := NewFunctionSeries(scenario(), timeseries.KindFloat64, Average)
	require.NoError(t, err)

	s, ok := fs.Next(1)
	require.True(t, ok)
	assert.Equal(t, int64(5), s.Timestamp)
	assert.InDelta(t, 57.5, s.Value.Float64(), 1e-9)

	s, ok = fs.Previous(9)
	require.True(t, ok)
	assert.Equal(t, int64(5), s.Timestamp)

	assert.Equal(t, 3, fs.Size())
	assert.Equal(t, 2, fs.SizeRange(0, 10))
	assert.False(t, fs.IsEmpty())
	assert.True(t, fs.IsEmptyRange(11, 20))
}

func TestFunctionSeriesWithNow(t *testing.T) {
	a := timeseries.NewMemorySeries(timeseries.Linear, f64(0, 0), f64(10, 10))
	b := timeseries.NewMemorySeries(timeseries.Linear, f64(0, 0), f64(15, 30))

	held, err := NewFunctionSeries([]timeseries.Series{a, b}, timeseries.KindFloat64, Sum, WithNow(20))
	require.NoError(t, err)
	s, ok := held.Value(15)
	require.True(t, ok)
	assert.Equal(t, timeseries.Good, s.Quality)
	assert.InDelta(t, 40.0, s.Value.Float64(), 1e-9)

	samples := collect(t, held.Iterator(0, 20))
	require.Len(t, samples, 3)
	assert.Equal(t, s, samples[2])

	open, err := NewFunctionSeries([]timeseries.Series{a, b}, timeseries.KindFloat64, Sum)
	require.NoError(t, err)
	s, ok = open.Value(15)
	require.True(t, ok)
	assert.Equal(t, timeseries.Bad, s.Quality)
	assert.InDelta(t, 30.0, s.Value.Float64(), 1e-9)

	// nothing is held past now
	_, ok = held.Value(25)
	assert.False(t, ok)
}

func TestFunctionSeriesKinds(t *testing.T) {
	ints := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Steps, timeseries.NewSample(0, timeseries.Int32Value(3))),
		timeseries.NewMemorySeries(timeseries.Steps, timeseries.NewSample(0, timeseries.Int32Value(4))),
	}
	fs, err := NewFunctionSeries(ints, timeseries.KindInt64, Sum)
	require.NoError(t, err)
	s, ok := fs.Value(1)
	require.True(t, ok)
	assert.Equal(t, timeseries.Int64Value(7), s.Value)

	strs := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Steps, timeseries.NewSample(0, timeseries.StringValue("a"))),
		timeseries.NewMemorySeries(timeseries.Steps, timeseries.NewSample(0, timeseries.StringValue("b"))),
	}
	concat, ok := ReduceFuncByName("concat")
	require.True(t, ok)
	fs, err = NewFunctionSeries(strs, timeseries.KindString, concat)
	require.NoError(t, err)
	s, ok = fs.Value(0)
	require.True(t, ok)
	assert.Equal(t, "a,b", s.Value.String())
}

func TestFunctionSeriesInterpolationMode(t *testing.T) {
	same := []timeseries.Series{
		timeseries.NewMemorySeries(timeseries.Linear),
		timeseries.NewMemorySeries(timeseries.Linear),
	}
	fs, err := NewFunctionSeries(same, timeseries.KindFloat64, Sum)
	require.NoError(t, err)
	assert.Equal(t, timeseries.Linear, fs.InterpolationMode())

	fs, err = NewFunctionSeries(scenario(), timeseries.KindFloat64, Sum)
	require.NoError(t, err)
	assert.Equal(t, timeseries.None, fs.InterpolationMode())

	fs, err = NewFunctionSeries(scenario(), timeseries.KindFloat64, Sum, WithGlobalMode(timeseries.Steps))
	require.NoError(t, err)
	assert.Equal(t, timeseries.Steps, fs.InterpolationMode())

	fs, err = NewFunctionSeries(scenario(), timeseries.KindFloat64, Sum, WithOutputMode(timeseries.Nearest))
	require.NoError(t, err)
	assert.Equal(t, timeseries.Nearest, fs.InterpolationMode())
}

func TestFunctionSeriesGlobalModeChangesValues(t *testing.T) {
	fs, err := NewFunctionSeries(scenario(), timeseries.KindFloat64, Average, WithGlobalMode(timeseries.Steps))
	require.NoError(t, err)

	s, ok := fs.Value(5)
	require.True(t, ok)
	assert.InDelta(t, (10.0+100.0)/2, s.Value.Float64(), 1e-9)
}
