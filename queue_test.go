package corochan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainFifo[T any](q *fifo[T]) []T {
	var out []T
	for {
		v, ok := q.PopFront()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestFifoOrder(t *testing.T) {
	var q fifo[int]
	for i := range 10 {
		q.PushBack(i)
	}
	assert.Equal(t, 10, q.Len())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, 0, front)
	assert.Equal(t, 9, q.At(9))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, drainFifo(&q))
	_, ok = q.PopFront()
	assert.False(t, ok)
}

func TestFifoWrapAround(t *testing.T) {
	var q fifo[int]
	for i := range 3 {
		q.PushBack(i)
	}
	q.PopFront()
	q.PopFront()
	// head is now in the middle of the buffer
	for i := 3; i < 8; i++ {
		q.PushBack(i)
	}
	q.PushFront(-1)
	assert.Equal(t, []int{-1, 2, 3, 4, 5, 6, 7}, drainFifo(&q))
}

func TestFifoPushFront(t *testing.T) {
	var q fifo[string]
	q.PushFront("b")
	q.PushFront("a")
	q.PushBack("c")
	assert.Equal(t, []string{"a", "b", "c"}, drainFifo(&q))
}

func TestFifoRemoveFunc(t *testing.T) {
	var q fifo[int]
	for i := range 6 {
		q.PushBack(i)
	}

	assert.True(t, q.RemoveFunc(func(v int) bool { return v == 3 }))
	assert.False(t, q.RemoveFunc(func(v int) bool { return v == 42 }))
	assert.True(t, q.RemoveFunc(func(v int) bool { return v%2 == 0 }), "removes the oldest match only")

	assert.Equal(t, []int{1, 2, 4, 5}, drainFifo(&q))
}

func TestFifoPopZeroesSlot(t *testing.T) {
	var q fifo[*int]
	v := new(int)
	q.PushBack(v)
	q.PopFront()
	for _, p := range q.buf {
		assert.Nil(t, p)
	}
}

func TestFifoAtOutOfRange(t *testing.T) {
	var q fifo[int]
	q.PushBack(1)
	mustPanic(t, "out of range", func() { q.At(1) })
}

func TestWaitQueueStaleAccounting(t *testing.T) {
	w := waitQueue{side: consumerSide}
	a, b := &Coroutine{}, &Coroutine{}

	w.enqueue(a, false)
	w.enqueue(b, false)
	assert.True(t, w.needsWakeup())

	w.pending = 2
	assert.False(t, w.needsWakeup())

	// Removing one waiter with two wakeups in flight leaves one surplus.
	require.True(t, w.remove(a))
	assert.Equal(t, 1, w.pending)
	assert.Equal(t, 1, w.stale)
	assert.LessOrEqual(t, w.pending, w.Len())

	assert.False(t, w.remove(a), "already removed")

	w.enqueue(a, true)
	front, _ := w.waiters.Front()
	assert.Same(t, a, front)
}
