package timeseries

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeriesLookups(t *testing.T) {
	s := NewMemorySeries(Linear, f64(20, 3), f64(0, 1), f64(10, 2))

	require.Equal(t, 3, s.Size())
	assert.False(t, s.IsEmpty())
	assert.Equal(t, 2, s.SizeRange(0, 20))
	assert.True(t, s.IsEmptyRange(11, 20))

	next, ok := s.Next(10)
	require.True(t, ok)
	assert.Equal(t, int64(10), next.Timestamp)

	next, ok = s.Next(11)
	require.True(t, ok)
	assert.Equal(t, int64(20), next.Timestamp)

	_, ok = s.Next(21)
	assert.False(t, ok)

	prev, ok := s.Previous(10)
	require.True(t, ok)
	assert.Equal(t, int64(10), prev.Timestamp)

	prev, ok = s.Previous(math.MaxInt64)
	require.True(t, ok)
	assert.Equal(t, int64(20), prev.Timestamp)

	_, ok = s.Previous(-1)
	assert.False(t, ok)

	v, ok := s.Value(15)
	require.True(t, ok)
	assert.Equal(t, 2.5, v.Value.Float64())
}

func TestMemorySeriesAddReplaces(t *testing.T) {
	s := NewMemorySeries(Steps, f64(0, 1), f64(10, 2))
	it := s.Iterator(0, 100)

	s.Add(f64(10, 5), f64(5, 4))

	var seen []float64
	for it.Next() {
		seen = append(seen, it.Current().Value.Float64())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []float64{1, 2}, seen, "running iterator keeps its view")

	values := s.Values(0, 100)
	require.Len(t, values, 3)
	assert.Equal(t, 4.0, values[1].Value.Float64())
	assert.Equal(t, 5.0, values[2].Value.Float64())
}

func TestIteratorIsRestartable(t *testing.T) {
	s := NewMemorySeries(None, f64(0, 1), f64(10, 2), f64(20, 3))

	for i := 0; i < 2; i++ {
		it := s.Iterator(5, 25)
		var ts []int64
		for it.Next() {
			ts = append(ts, it.Current().Timestamp)
		}
		assert.Equal(t, []int64{10, 20}, ts)
		assert.False(t, it.Next())
	}
}

func TestValueConversions(t *testing.T) {
	assert.Equal(t, int64(3), Float64Value(3.7).Int64())
	assert.Equal(t, KindInt32, Float64Value(3.7).Convert(KindInt32).Kind())
	assert.Equal(t, "3.5", Float32Value(3.5).String())
	assert.Equal(t, 42.0, StringValue("42").Float64())
	assert.True(t, math.IsNaN(StringValue("x").Float64()))
	assert.True(t, NullValue(KindFloat64).IsNaN())
	assert.Equal(t, int64(0), NullValue(KindInt64).Int64())
	assert.Equal(t, "", NullValue(KindString).String())
	assert.Equal(t, int64(4), FromFloat64(KindInt64, 3.5).Int64())

	kind, err := ParseKind("int32")
	require.NoError(t, err)
	assert.Equal(t, KindInt32, kind)

	_, err = ParseKind("decimal")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
