package reactor

import (
	"container/heap"
	"time"
)

// Timer is a one-shot callback registered with [Loop.AfterFunc].
type Timer struct {
	when  time.Time
	seq   uint64
	fn    func()
	index int // position in the heap; -1 once fired or stopped
	loop  *Loop
}

// Stop cancels the timer. It reports whether the call prevented the callback
// from running; false means the timer already fired or was stopped.
// Stop must be called from loop context.
func (t *Timer) Stop() bool {
	if t == nil || t.index < 0 {
		return false
	}
	heap.Remove(&t.loop.timers, t.index)
	t.index = -1
	t.fn = nil
	return true
}

// When returns the deadline the timer was armed for.
func (t *Timer) When() time.Time {
	return t.when
}

// timerHeap is a min-heap ordered by deadline, then by arm order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
