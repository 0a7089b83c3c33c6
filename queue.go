package corochan

// fifo is a growable ring-buffer queue. It backs both the buffered values
// of a channel and its wait queues. Popped slots are zeroed so the queue
// never keeps a second reference to a value it handed out.
type fifo[T any] struct {
	buf  []T
	head int
	n    int
}

func (q *fifo[T]) Len() int { return q.n }

func (q *fifo[T]) slot(i int) int {
	return (q.head + i) % len(q.buf)
}

func (q *fifo[T]) grow() {
	size := 2 * len(q.buf)
	if size < 4 {
		size = 4
	}
	buf := make([]T, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[q.slot(i)]
	}
	q.buf = buf
	q.head = 0
}

// PushBack appends v at the tail.
func (q *fifo[T]) PushBack(v T) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[q.slot(q.n)] = v
	q.n++
}

// PushFront inserts v at the head.
func (q *fifo[T]) PushFront(v T) {
	if q.n == len(q.buf) {
		q.grow()
	}
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = v
	q.n++
}

// PopFront removes and returns the oldest element.
func (q *fifo[T]) PopFront() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Front returns the oldest element without removing it.
func (q *fifo[T]) Front() (T, bool) {
	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// At returns the i-th oldest element. It panics if i is out of range.
func (q *fifo[T]) At(i int) T {
	if i < 0 || i >= q.n {
		panic("corochan: queue index out of range")
	}
	return q.buf[q.slot(i)]
}

// RemoveFunc removes the oldest element matching fn, keeping the order of
// the rest. It reports whether an element was removed.
func (q *fifo[T]) RemoveFunc(fn func(T) bool) bool {
	idx := -1
	for i := 0; i < q.n; i++ {
		if fn(q.buf[q.slot(i)]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	for i := idx; i < q.n-1; i++ {
		q.buf[q.slot(i)] = q.buf[q.slot(i+1)]
	}
	var zero T
	q.buf[q.slot(q.n-1)] = zero
	q.n--
	return true
}
