package corochan

import (
	"time"

	"github.com/baxromumarov/corochan/reactor"
)

// pendingTimeout guards one Pop call with a deadline. On expiry it pulls the
// coroutine out of the consumer queue and resumes it, without waiting for a
// producer.
type pendingTimeout struct {
	co      *Coroutine
	expired bool
	timer   *reactor.Timer
}

func armTimeout(n *notifier, w *waitQueue, co *Coroutine, d time.Duration) *pendingTimeout {
	pt := &pendingTimeout{co: co}
	pt.timer = n.loop.AfterFunc(d, func() {
		pt.timer = nil
		// Not queued means a wakeup already took it; that wakeup wins.
		if !w.remove(co) {
			return
		}
		pt.expired = true
		n.metrics.waiters(w)
		n.sched.resume(co)
	})
	return pt
}

// release cancels the timer if it has not fired. Safe on a nil receiver.
func (pt *pendingTimeout) release() {
	if pt == nil || pt.timer == nil {
		return
	}
	pt.timer.Stop()
	pt.timer = nil
}
