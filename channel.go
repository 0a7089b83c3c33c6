package corochan

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Channel is a bounded FIFO channel between coroutines of one [Runtime].
//
// Push and Pop suspend the calling coroutine instead of blocking a thread.
// A suspended coroutine is resumed by a deferred notification scheduled on
// the runtime's loop, one per waiter, so a single Push or Pop never wakes
// more coroutines than it can satisfy.
//
// A capacity of zero makes a rendezvous channel: a Push completes only when
// a consumer is waiting for it.
//
// A Channel is not safe for use from arbitrary goroutines. Call its methods
// from coroutines of its runtime or from loop callbacks (see
// [Runtime.Submit]).
type Channel[T any] struct {
	rt       *Runtime
	name     string
	capacity int
	closed   bool

	data      fifo[T]
	producers waitQueue
	consumers waitQueue

	n   *notifier
	m   *channelMetrics
	log logrus.FieldLogger
}

// ChannelStats is a snapshot of a channel's state.
type ChannelStats struct {
	Name             string
	Len              int
	Cap              int
	Producers        int
	Consumers        int
	PendingProducers int
	PendingConsumers int
	Closed           bool
}

// ChannelOption configures a [Channel].
type ChannelOption func(*channelConfig)

type channelConfig struct {
	name string
}

// Named sets the channel name used in logs and metric labels.
// Channels are named "chan-<n>" by default.
func Named(name string) ChannelOption {
	return func(c *channelConfig) {
		c.name = name
	}
}

// NewChannel creates a channel on rt holding up to capacity buffered values.
// It panics if rt is nil or capacity is negative.
func NewChannel[T any](rt *Runtime, capacity int, opts ...ChannelOption) *Channel[T] {
	if rt == nil {
		panic("corochan: NewChannel requires a non-nil Runtime")
	}
	if capacity < 0 {
		panic(fmt.Sprintf("corochan: negative channel capacity %d", capacity))
	}

	cfg := channelConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("chan-%d", rt.chanSeq.Add(1))
	}

	m := rt.metrics.channel(cfg.name)
	return &Channel[T]{
		rt:        rt,
		name:      cfg.name,
		capacity:  capacity,
		producers: waitQueue{side: producerSide},
		consumers: waitQueue{side: consumerSide},
		n:         &notifier{loop: rt.loop, sched: rt.sched, metrics: m},
		m:         m,
		log:       rt.log.WithField("chan", cfg.name),
	}
}

// canPush reports whether a value can be handed over without waiting.
// A rendezvous channel needs a consumer that has not yet been promised a
// value.
func (c *Channel[T]) canPush() bool {
	if c.capacity > 0 {
		return c.data.Len() < c.capacity
	}
	return c.consumers.needsWakeup()
}

func (c *Channel[T]) current(ctx context.Context, op string) *Coroutine {
	co := mustCurrent(ctx, op)
	if co.sched != c.rt.sched {
		panic(fmt.Sprintf("corochan: %s on channel %q from a coroutine of another runtime", op, c.name))
	}
	return co
}

func (c *Channel[T]) wait(co *Coroutine, w *waitQueue, front bool) error {
	w.enqueue(co, front)
	c.m.waiters(w)
	// Close has already notified everyone queued before it; a waiter
	// arriving later schedules its own wakeup.
	if c.closed && w.needsWakeup() {
		c.n.notify(w)
	}
	c.log.WithFields(logrus.Fields{"id": co.ID(), "side": w.side}).Debug("coroutine suspended")

	if err := co.suspend(); err != nil {
		w.remove(co)
		c.m.waiters(w)
		return err
	}
	return nil
}

// Push appends v, suspending the calling coroutine while the channel is
// full or other producers are queued ahead of it.
//
// It returns [ErrClosed] if the channel is closed, including when the close
// happens while the caller is suspended; v is not enqueued then.
// ctx must carry the calling coroutine; Push panics with a [*MisuseError]
// otherwise.
func (c *Channel[T]) Push(ctx context.Context, v T) error {
	co := c.current(ctx, "Channel.Push")

	if c.closed {
		c.m.op("push", "closed")
		return ErrClosed
	}

	if !c.canPush() || c.producers.Len() > 0 {
		front := false
		for {
			if err := c.wait(co, &c.producers, front); err != nil {
				return err
			}
			if c.closed {
				c.m.op("push", "closed")
				return ErrClosed
			}
			if c.canPush() {
				break
			}
			// The consumer this wakeup was meant for timed out.
			front = true
		}
	}

	c.put(v)
	return nil
}

// TryPush appends v if that needs no waiting. It returns [ErrWouldBlock]
// when Push would suspend and [ErrClosed] on a closed channel.
func (c *Channel[T]) TryPush(v T) error {
	if c.closed {
		c.m.op("push", "closed")
		return ErrClosed
	}
	if !c.canPush() || c.producers.Len() > 0 {
		c.m.op("push", "would_block")
		return ErrWouldBlock
	}
	c.put(v)
	return nil
}

func (c *Channel[T]) put(v T) {
	c.data.PushBack(v)
	if c.consumers.needsWakeup() {
		c.n.notify(&c.consumers)
	}
	c.m.op("push", "ok")
}

// Pop removes the oldest value, suspending the calling coroutine while the
// channel is empty or other consumers are queued ahead of it.
//
// A positive timeout bounds the wait; on expiry Pop returns [ErrTimeout] and
// the zero value, and nothing is dequeued. A timeout <= 0 waits forever.
//
// On a closed channel Pop keeps returning buffered values, in the order
// consumers arrived, and then [ErrClosed]. ctx must carry the calling
// coroutine; Pop panics with a [*MisuseError] otherwise.
func (c *Channel[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	co := c.current(ctx, "Channel.Pop")
	var zero T

	if c.closed && c.data.Len() == 0 {
		c.m.op("pop", "closed")
		return zero, ErrClosed
	}

	if c.data.Len() == 0 || c.consumers.Len() > 0 {
		var pt *pendingTimeout
		if timeout > 0 {
			pt = armTimeout(c.n, &c.consumers, co, timeout)
		}
		defer pt.release()

		front := false
		for {
			if c.capacity == 0 && !c.closed && c.producers.needsWakeup() {
				c.n.notify(&c.producers)
			}
			if err := c.wait(co, &c.consumers, front); err != nil {
				return zero, err
			}
			if pt != nil && pt.expired {
				c.log.WithField("id", co.ID()).Debug("pop timed out")
				c.m.op("pop", "timeout")
				return zero, ErrTimeout
			}
			if c.data.Len() > 0 {
				break
			}
			if c.closed {
				c.m.op("pop", "closed")
				return zero, ErrClosed
			}
			front = true
		}
	}

	return c.take(), nil
}

// TryPop removes the oldest value if one is available to the caller without
// waiting. It returns [ErrWouldBlock] otherwise, or [ErrClosed] on a closed
// and drained channel.
func (c *Channel[T]) TryPop() (T, error) {
	var zero T
	if c.data.Len() == 0 {
		if c.closed {
			c.m.op("pop", "closed")
			return zero, ErrClosed
		}
		c.m.op("pop", "would_block")
		return zero, ErrWouldBlock
	}
	if c.consumers.Len() > 0 {
		c.m.op("pop", "would_block")
		return zero, ErrWouldBlock
	}
	return c.take(), nil
}

func (c *Channel[T]) take() T {
	v, ok := c.data.PopFront()
	if !ok {
		panic("corochan: dequeue from an empty channel buffer")
	}
	if c.producers.needsWakeup() {
		c.n.notify(&c.producers)
	}
	c.m.op("pop", "ok")
	return v
}

// Close marks the channel closed and wakes every suspended producer and
// consumer. It returns false if the channel was already closed.
// Close never suspends and may be called from loop callbacks.
func (c *Channel[T]) Close() bool {
	if c.closed {
		return false
	}
	c.closed = true

	for c.producers.needsWakeup() {
		c.n.notify(&c.producers)
	}
	for c.consumers.needsWakeup() {
		c.n.notify(&c.consumers)
	}

	c.log.WithFields(logrus.Fields{
		"buffered":  c.data.Len(),
		"producers": c.producers.Len(),
		"consumers": c.consumers.Len(),
	}).Debug("channel closed")
	return true
}

// Len returns the number of buffered values.
func (c *Channel[T]) Len() int { return c.data.Len() }

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int { return c.capacity }

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool { return c.closed }

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Stats returns a snapshot of the channel's state.
func (c *Channel[T]) Stats() ChannelStats {
	return ChannelStats{
		Name:             c.name,
		Len:              c.data.Len(),
		Cap:              c.capacity,
		Producers:        c.producers.Len(),
		Consumers:        c.consumers.Len(),
		PendingProducers: c.producers.pending,
		PendingConsumers: c.consumers.pending,
		Closed:           c.closed,
	}
}
