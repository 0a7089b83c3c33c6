package reactor

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by [Loop.Submit] after [Loop.Shutdown].
var ErrClosed = errors.New("reactor: loop is closed")

// Loop is a single-goroutine event loop.
//
// Every method except Submit, Wake, Hold and Stats must be called from loop
// context: from the goroutine calling Tick, or from code that goroutine has
// handed control to and is blocked on.
type Loop struct {
	waker  Waker
	log    logrus.FieldLogger
	budget int

	deferred []func()
	timers   timerHeap
	timerSeq uint64

	ingressMu sync.Mutex
	ingress   []func()
	closed    bool

	// wakePending is set while a token is in flight; it is cleared after
	// the loop drains the waker.
	wakePending atomic.Bool
	holds       atomic.Int64

	ticks    atomic.Uint64
	wakeups  atomic.Uint64
	executed atomic.Uint64
}

// Stats is a point-in-time snapshot of loop activity.
// Safe to call concurrently.
type Stats struct {
	Ticks    uint64 // loop iterations
	Wakeups  uint64 // wakeup tokens written
	Executed uint64 // deferred, ingress and timer callbacks run
	Holds    int64  // outstanding holds
}

// Option configures a [Loop].
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// WithBudget caps the number of deferred callbacks run per iteration.
// Zero means the whole batch queued before the iteration started.
// WithBudget panics if n is negative.
func WithBudget(n int) Option {
	if n < 0 {
		panic("reactor: budget must be non-negative")
	}
	return func(l *Loop) {
		l.budget = n
	}
}

// New creates a loop polling w. The loop takes ownership of w and closes it
// in [Loop.Shutdown].
func New(w Waker, opts ...Option) *Loop {
	if w == nil {
		panic("reactor: New requires a non-nil Waker")
	}
	l := &Loop{
		waker: w,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Defer schedules fn to run once on the next iteration, after every callback
// deferred before it.
func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// AfterFunc arms a one-shot timer that runs fn on the loop once d has
// elapsed. The callback runs at most once and never after Stop returns true.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	l.timerSeq++
	t := &Timer{
		when: time.Now().Add(d),
		seq:  l.timerSeq,
		fn:   fn,
		loop: l,
	}
	heap.Push(&l.timers, t)
	return t
}

// Submit hands fn to the loop from any goroutine and wakes the loop if it
// is blocked. Callbacks run in submission order.
func (l *Loop) Submit(fn func()) error {
	l.ingressMu.Lock()
	if l.closed {
		l.ingressMu.Unlock()
		return ErrClosed
	}
	l.ingress = append(l.ingress, fn)
	l.ingressMu.Unlock()

	return l.Wake()
}

// Wake writes a wakeup token unless one is already in flight.
// Safe to call from any goroutine.
func (l *Loop) Wake() error {
	if !l.wakePending.CompareAndSwap(false, true) {
		return nil
	}
	if err := l.waker.Wake(); err != nil {
		// Clear the flag so a later Wake can retry.
		l.wakePending.Store(false)
		l.log.WithError(err).Warn("reactor: wakeup write failed")
		return err
	}
	l.wakeups.Add(1)
	return nil
}

// Hold marks the loop as expecting ingress from another goroutine, so
// [Loop.Idle] reports false until the returned release func is called.
// Release is idempotent and safe to call from any goroutine.
func (l *Loop) Hold() (release func()) {
	l.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.holds.Add(-1)
			_ = l.Wake()
		})
	}
}

// Idle reports whether the loop has nothing that could ever run: no
// deferred work, no timers, no queued ingress and no holds.
func (l *Loop) Idle() bool {
	if len(l.deferred) > 0 || len(l.timers) > 0 || l.holds.Load() > 0 {
		return false
	}
	l.ingressMu.Lock()
	defer l.ingressMu.Unlock()
	return len(l.ingress) == 0
}

// Pending returns the number of deferred callbacks waiting for the next
// iteration.
func (l *Loop) Pending() int {
	return len(l.deferred)
}

// Timers returns the number of armed timers.
func (l *Loop) Timers() int {
	return len(l.timers)
}

// Tick runs one loop iteration: expired timers, then ingress, then the
// deferred batch, then a poll on the waker. The poll blocks only when no
// callback is ready, for at most the time until the next timer, or
// indefinitely while a [Loop.Hold] is outstanding.
func (l *Loop) Tick() error {
	l.ticks.Add(1)

	l.runTimers()
	l.runIngress()
	l.runDeferred()

	return l.poll()
}

func (l *Loop) runTimers() {
	now := time.Now()
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.when.After(now) {
			return
		}
		heap.Pop(&l.timers)
		fn := t.fn
		t.fn = nil
		if fn != nil {
			l.executed.Add(1)
			fn()
		}
	}
}

func (l *Loop) runIngress() {
	l.ingressMu.Lock()
	batch := l.ingress
	l.ingress = nil
	l.ingressMu.Unlock()

	for i, fn := range batch {
		batch[i] = nil
		l.executed.Add(1)
		fn()
	}
}

func (l *Loop) runDeferred() {
	if len(l.deferred) == 0 {
		return
	}

	batch := l.deferred
	l.deferred = nil

	var rest []func()
	if l.budget > 0 && len(batch) > l.budget {
		rest = append(rest, batch[l.budget:]...)
		batch = batch[:l.budget]
	}

	for i, fn := range batch {
		batch[i] = nil
		l.executed.Add(1)
		fn()
	}

	if len(rest) > 0 {
		l.deferred = append(rest, l.deferred...)
	}
}

func (l *Loop) poll() error {
	timeout := l.pollTimeout()

	ready, err := l.waker.Wait(timeout)
	if err != nil {
		return err
	}
	if ready {
		if err := l.waker.Drain(); err != nil {
			return err
		}
		l.wakePending.Store(false)
	}
	return nil
}

func (l *Loop) pollTimeout() time.Duration {
	if len(l.deferred) > 0 {
		return 0
	}

	l.ingressMu.Lock()
	queued := len(l.ingress)
	l.ingressMu.Unlock()
	if queued > 0 {
		return 0
	}

	if len(l.timers) == 0 {
		// Only an outside goroutine can produce work now; without a hold
		// nothing will, so do not block.
		if l.holds.Load() > 0 {
			return -1
		}
		return 0
	}
	d := time.Until(l.timers[0].when)
	if d < 0 {
		return 0
	}
	return d
}

// Stats returns a snapshot of loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:    l.ticks.Load(),
		Wakeups:  l.wakeups.Load(),
		Executed: l.executed.Load(),
		Holds:    l.holds.Load(),
	}
}

// Shutdown rejects further Submit calls and closes the waker.
// Safe to call multiple times.
func (l *Loop) Shutdown() error {
	l.ingressMu.Lock()
	if l.closed {
		l.ingressMu.Unlock()
		return nil
	}
	l.closed = true
	l.ingressMu.Unlock()

	return l.waker.Close()
}
