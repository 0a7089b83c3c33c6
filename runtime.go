package corochan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/corochan/reactor"
)

// Runtime owns an event loop and the coroutines scheduled on it. It replaces
// any process-wide scheduler state: every [Channel] belongs to one Runtime.
//
// A Runtime is driven by a single call to [Runtime.Run]. Apart from
// [Runtime.Submit], [Runtime.Go], [Runtime.Hold], [Runtime.Stats],
// [Runtime.ID], [Runtime.Done] and [Runtime.Close], its methods and those of
// its channels must be called from coroutines or loop callbacks.
type Runtime struct {
	id      string
	cfg     config
	inj     *do.Injector
	loop    *reactor.Loop
	sched   *scheduler
	log     logrus.FieldLogger
	metrics *metrics

	chanSeq atomic.Uint64
	started atomic.Bool
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// RuntimeStats is a snapshot of coroutine counters.
type RuntimeStats struct {
	Spawned   int64
	Active    int64
	Completed int64
	Errored   int64
	Panicked  int64
}

const runtimeIDKey = "corochan.runtime-id"

// New builds a runtime. The logger, metrics, waker, loop and scheduler are
// wired through a dependency injector and released by [Runtime.Close].
func New(opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideNamedValue(i, runtimeIDKey, uuid.NewString())
	do.Provide(i, provideLogger)
	do.Provide(i, provideMetrics)
	do.Provide(i, provideWaker)
	do.Provide(i, provideLoop)
	do.Provide(i, provideScheduler)

	sched, err := do.Invoke[*scheduler](i)
	if err != nil {
		_ = i.Shutdown()
		return nil, fmt.Errorf("corochan: build runtime: %w", err)
	}

	rt := &Runtime{
		id:      do.MustInvokeNamed[string](i, runtimeIDKey),
		cfg:     cfg,
		inj:     i,
		loop:    do.MustInvoke[*reactor.Loop](i),
		sched:   sched,
		log:     do.MustInvoke[logrus.FieldLogger](i),
		metrics: do.MustInvoke[*metrics](i),
		done:    make(chan struct{}),
	}
	sched.rt = rt
	rt.metrics.bind(cfg.namespace, rt.loop, sched)

	rt.log.Debug("runtime created")
	return rt, nil
}

func provideLogger(i *do.Injector) (logrus.FieldLogger, error) {
	cfg := do.MustInvoke[config](i)
	id := do.MustInvokeNamed[string](i, runtimeIDKey)

	base := cfg.logger
	if base == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(cfg.logLevel)
		base = l
	}

	fields := logrus.Fields{"runtime": id}
	if cfg.name != "" {
		fields["name"] = cfg.name
	}
	return base.WithFields(fields), nil
}

func provideMetrics(i *do.Injector) (*metrics, error) {
	cfg := do.MustInvoke[config](i)
	id := do.MustInvokeNamed[string](i, runtimeIDKey)
	return newMetrics(cfg.registerer, cfg.namespace, id), nil
}

func provideWaker(i *do.Injector) (reactor.Waker, error) {
	cfg := do.MustInvoke[config](i)
	return reactor.NewWaker(cfg.waker)
}

func provideLoop(i *do.Injector) (*reactor.Loop, error) {
	cfg := do.MustInvoke[config](i)
	w, err := do.Invoke[reactor.Waker](i)
	if err != nil {
		return nil, err
	}
	log := do.MustInvoke[logrus.FieldLogger](i)
	return reactor.New(w, reactor.WithLogger(log), reactor.WithBudget(cfg.deferBudget)), nil
}

func provideScheduler(i *do.Injector) (*scheduler, error) {
	loop, err := do.Invoke[*reactor.Loop](i)
	if err != nil {
		return nil, err
	}
	return newScheduler(loop, do.MustInvoke[logrus.FieldLogger](i), do.MustInvoke[config](i)), nil
}

// Run spawns a root coroutine running fn and drives the loop until every
// coroutine has returned. It returns the failures of all coroutines joined
// together, each wrapped in a [*CoroutineError].
//
// Run stops early with ctx.Err() when ctx is cancelled, and with
// [ErrDeadlock] when coroutines are suspended but nothing left in the loop
// could resume them. Coroutines still suspended at that point are unwound:
// their deferred calls run and channel calls made from them fail with
// [ErrRuntimeClosed].
//
// A coroutine panic is re-raised from Run unless [WithPanicAsError] is set.
// Run may be called once; later calls return [ErrRuntimeClosed].
func (rt *Runtime) Run(ctx context.Context, fn TaskFunc) error {
	if fn == nil {
		panic("corochan: Run requires a non-nil TaskFunc")
	}
	if !rt.started.CompareAndSwap(false, true) {
		return ErrRuntimeClosed
	}
	defer close(rt.done)

	s := rt.sched
	s.ctx = ctx
	s.spawn("main", fn)

	stop := context.AfterFunc(ctx, func() { _ = rt.loop.Wake() })
	defer stop()

	var runErr error
	for len(s.live) > 0 {
		if s.panicked != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if rt.loop.Idle() {
			runErr = ErrDeadlock
			rt.log.WithField("suspended", len(s.live)).Warn("all coroutines are asleep")
			break
		}
		if err := rt.loop.Tick(); err != nil {
			runErr = fmt.Errorf("corochan: loop: %w", err)
			break
		}
	}

	if n := s.killAll(); n > 0 {
		rt.log.WithField("count", n).Debug("unwound suspended coroutines")
	}
	_ = rt.loop.Shutdown()

	if pe := s.panicked; pe != nil {
		panic(pe)
	}
	return errors.Join(append([]error{runErr}, s.errs...)...)
}

// Go spawns a coroutine from any goroutine. The coroutine starts once the
// loop picks up the request. It returns [ErrRuntimeClosed] when the runtime
// is no longer running.
func (rt *Runtime) Go(name string, fn TaskFunc) error {
	if fn == nil {
		panic("corochan: Go requires a non-nil TaskFunc")
	}
	return rt.Submit(func() { rt.sched.spawn(name, fn) })
}

// Submit runs fn on the loop. Safe to call from any goroutine; this is the
// way code outside the runtime hands work to it. Callbacks run in
// submission order, with no coroutine running.
func (rt *Runtime) Submit(fn func()) error {
	if err := rt.loop.Submit(fn); err != nil {
		if errors.Is(err, reactor.ErrClosed) {
			return ErrRuntimeClosed
		}
		return err
	}
	return nil
}

// Hold tells the runtime that another goroutine may still call Submit, so
// [Runtime.Run] blocks instead of reporting a deadlock. Call the returned
// func once that goroutine is done.
func (rt *Runtime) Hold() (release func()) {
	return rt.loop.Hold()
}

// Done is closed when Run returns.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.done
}

// ID returns the runtime's unique ID. It is attached to every log entry and
// metric of the runtime.
func (rt *Runtime) ID() string {
	return rt.id
}

// Stats returns a snapshot of coroutine counters. Safe to call concurrently.
func (rt *Runtime) Stats() RuntimeStats {
	s := rt.sched
	return RuntimeStats{
		Spawned:   s.spawned.Load(),
		Active:    s.active.Load(),
		Completed: s.completed.Load(),
		Errored:   s.errored.Load(),
		Panicked:  s.panics.Load(),
	}
}

// Close releases the runtime's resources: the loop's waker and the metric
// collectors. It must not be called while Run is in progress.
// Safe to call multiple times.
func (rt *Runtime) Close() error {
	rt.closeOnce.Do(func() {
		rt.closeErr = rt.inj.Shutdown()
	})
	return rt.closeErr
}

// Run creates a runtime, runs fn on it and closes it.
func Run(ctx context.Context, fn TaskFunc, opts ...Option) error {
	rt, err := New(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Run(ctx, fn)
}
