// Package evict provides a bounded FIFO queue that drops its oldest entry
// when full.
package evict

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

// Queue is a fixed capacity FIFO. A capacity of zero keeps nothing.
// Queue is not safe for concurrent use.
type Queue[T any] struct {
	capacity int
	items    *deque.Deque[T]
}

// New creates a queue holding at most capacity elements.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative queue capacity %d", timeseries.ErrInvalidArgument, capacity)
	}
	return &Queue[T]{
		capacity: capacity,
		items:    deque.New[T](),
	}, nil
}

// Push appends x, evicting the oldest element first if the queue is full.
func (q *Queue[T]) Push(x T) {
	if q.capacity == 0 {
		return
	}
	if q.items.Len() == q.capacity {
		q.items.PopFront()
	}
	q.items.PushBack(x)
}

// Len returns the number of held elements.
func (q *Queue[T]) Len() int { return q.items.Len() }

// Cap returns the configured capacity.
func (q *Queue[T]) Cap() int { return q.capacity }

// At returns the i-th element, 0 being the oldest.
func (q *Queue[T]) At(i int) T { return q.items.At(i) }

// Newest returns the element pushed stepsBack-1 pushes ago; 1 is the most
// recent push.
func (q *Queue[T]) Newest(stepsBack int) (T, bool) {
	var zero T
	if stepsBack < 1 || stepsBack > q.items.Len() {
		return zero, false
	}
	return q.items.At(q.items.Len() - stepsBack), true
}

// Items returns the elements from oldest to newest.
func (q *Queue[T]) Items() []T {
	out := make([]T, q.items.Len())
	for i := range out {
		out[i] = q.items.At(i)
	}
	return out
}

// Clear drops all elements.
func (q *Queue[T]) Clear() { q.items.Clear() }
