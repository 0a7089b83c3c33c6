package corochan

import (
	"context"
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by [Pool.Submit] when the pool has been closed.
var ErrPoolClosed = errors.New("corochan: pool is closed")

// Pool is a fixed set of worker coroutines consuming tasks from a [Channel].
// Submitting to a full queue suspends the submitter.
type Pool struct {
	tasks   *Channel[func(context.Context) error]
	exited  *Channel[struct{}]
	workers int
	alive   int
	closed  bool

	errs []error

	submitted int64
	completed int64
	errored   int64
	inFlight  int64
}

// PoolStats provides a point-in-time snapshot of pool activity.
type PoolStats struct {
	Submitted  int64 // total tasks submitted
	Completed  int64 // tasks finished (success + error)
	Errored    int64 // tasks that returned non-nil error
	InFlight   int64 // tasks currently executing
	QueueDepth int   // tasks waiting in the queue
	Workers    int   // worker count (fixed at creation)
}

// PoolOption configures a [Pool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	queueSize int
	name      string
}

// WithQueueSize sets the task queue capacity. Default is n * 2.
// Zero makes every Submit wait for an idle worker.
func WithQueueSize(size int) PoolOption {
	return func(c *poolConfig) {
		if size < 0 {
			panic("corochan: WithQueueSize requires non-negative size")
		}
		c.queueSize = size
	}
}

// WithPoolName sets the name used for the worker coroutines and the queue.
func WithPoolName(name string) PoolOption {
	return func(c *poolConfig) {
		c.name = name
	}
}

// NewPool spawns n worker coroutines via sp. They process tasks until
// [Pool.Close] is called. Panics if n <= 0.
func NewPool(sp Spawner, n int, opts ...PoolOption) *Pool {
	if n <= 0 {
		panic("corochan: NewPool requires n > 0")
	}

	cfg := poolConfig{queueSize: n * 2, name: "pool"}
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := sp.Runtime()
	p := &Pool{
		tasks:   NewChannel[func(context.Context) error](rt, cfg.queueSize, Named(cfg.name)),
		exited:  NewChannel[struct{}](rt, 0, Named(cfg.name+".exited")),
		workers: n,
		alive:   n,
	}

	for i := range n {
		sp.Go(fmt.Sprintf("%s-worker-%d", cfg.name, i), p.worker)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) error {
	defer func() {
		p.alive--
		if p.alive == 0 {
			p.exited.Close()
		}
	}()

	for {
		fn, err := p.tasks.Pop(ctx, 0)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		p.runTask(ctx, fn)
	}
}

func (p *Pool) runTask(ctx context.Context, fn func(context.Context) error) {
	p.inFlight++
	defer func() {
		p.inFlight--
		p.completed++
	}()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = newPanicError(r)
			}
		}()
		err = fn(ctx)
	}()
	if err != nil {
		p.errored++
		p.errs = append(p.errs, err)
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Submitted:  p.submitted,
		Completed:  p.completed,
		Errored:    p.errored,
		InFlight:   p.inFlight,
		QueueDepth: p.tasks.Len(),
		Workers:    p.workers,
	}
}

// Submit queues fn, suspending the calling coroutine while the queue is
// full. The task receives the context of the worker running it.
// Returns [ErrPoolClosed] if the pool has been closed.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.tasks.Push(ctx, fn); err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrPoolClosed
		}
		return err
	}
	p.submitted++
	return nil
}

// TrySubmit queues fn without suspending.
// Returns false if the queue is full or the pool is closed.
func (p *Pool) TrySubmit(fn func(context.Context) error) bool {
	if p.closed {
		return false
	}
	if err := p.tasks.TryPush(fn); err != nil {
		return false
	}
	p.submitted++
	return true
}

// Close stops accepting new tasks, suspends the calling coroutine until
// the workers have drained the queue, and returns the joined errors of all
// failed tasks. Safe to call multiple times.
func (p *Pool) Close(ctx context.Context) error {
	p.closed = true
	p.tasks.Close()

	if _, err := p.exited.Pop(ctx, 0); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return errors.Join(p.errs...)
}
