package evict

import (
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

func TestQueueEvictsOldest(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []int{3, 4, 5}, q.Items())

	newest, ok := q.Newest(1)
	require.True(t, ok)
	assert.Equal(t, 5, newest)

	oldest, ok := q.Newest(3)
	require.True(t, ok)
	assert.Equal(t, 3, oldest)

	_, ok = q.Newest(4)
	assert.False(t, ok)
}

func TestQueueZeroCapacity(t *testing.T) {
	q, err := New[string](0)
	require.NoError(t, err)

	q.Push("a")
	q.Push("b")
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Items())
}

func TestQueueNegativeCapacity(t *testing.T) {
	_, err := New[int](-1)
	require.ErrorIs(t, err, timeseries.ErrInvalidArgument)
}

func TestQueueEvictionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4711)
	parameters.MinSuccessfulTests = 200
	props := gopter.NewProperties(parameters)

	props.Property("queue keeps the last k pushes in order", prop.ForAll(
		func(capacity int, pushes []int) bool {
			q, err := New[int](capacity)
			if err != nil {
				return false
			}
			for _, p := range pushes {
				q.Push(p)
			}
			expected := pushes
			if len(pushes) > capacity {
				expected = pushes[len(pushes)-capacity:]
			}
			items := q.Items()
			if len(items) != len(expected) {
				return false
			}
			for i := range items {
				if items[i] != expected[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 10),
		gen.SliceOf(gen.Int()),
	))

	reporter := gopter.NewFormatedReporter(true, 160, os.Stdout)
	if !props.Run(reporter) {
		t.Error("eviction property failed")
	}
}
