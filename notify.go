package corochan

import (
	"fmt"

	"github.com/baxromumarov/corochan/reactor"
)

type side uint8

const (
	producerSide side = iota
	consumerSide
)

func (s side) String() string {
	if s == producerSide {
		return "producer"
	}
	return "consumer"
}

// waitQueue holds the coroutines suspended on one side of a channel, oldest
// first, and counts the wakeups already scheduled for them.
//
// Invariant: pending <= waiters.Len(). A wakeup pops whichever coroutine is
// oldest when it runs. When a timeout removes a waiter and leaves more
// wakeups than waiters, the surplus one is marked stale and skipped.
type waitQueue struct {
	side    side
	waiters fifo[*Coroutine]
	pending int
	stale   int
}

func (w *waitQueue) Len() int { return w.waiters.Len() }

// needsWakeup reports whether some waiter has no wakeup scheduled yet.
func (w *waitQueue) needsWakeup() bool {
	return w.waiters.Len() > w.pending
}

func (w *waitQueue) enqueue(co *Coroutine, front bool) {
	if front {
		w.waiters.PushFront(co)
		return
	}
	w.waiters.PushBack(co)
}

func (w *waitQueue) remove(co *Coroutine) bool {
	if !w.waiters.RemoveFunc(func(c *Coroutine) bool { return c == co }) {
		return false
	}
	if w.pending > w.waiters.Len() {
		w.pending--
		w.stale++
	}
	return true
}

// notifier schedules deferred, one-shot wakeups of channel waiters.
type notifier struct {
	loop    *reactor.Loop
	sched   *scheduler
	metrics *channelMetrics
}

// notify schedules exactly one wakeup of w's oldest waiter on the next loop
// iteration and makes sure the loop is not left blocked in its poll.
func (n *notifier) notify(w *waitQueue) {
	w.pending++
	n.metrics.notified(w.side)
	n.loop.Defer(func() { n.deliver(w) })
	if err := n.loop.Wake(); err != nil {
		n.sched.log.WithError(err).Debug("wakeup token not written")
	}
}

func (n *notifier) deliver(w *waitQueue) {
	if w.stale > 0 {
		w.stale--
		return
	}
	w.pending--
	co, ok := w.waiters.PopFront()
	if !ok {
		panic(fmt.Sprintf("corochan: %s wakeup delivered to an empty wait queue", w.side))
	}
	n.metrics.waiters(w)
	n.sched.resume(co)
}
