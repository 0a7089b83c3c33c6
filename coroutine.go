package corochan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/corochan/reactor"
)

var errGoexit = errors.New("corochan: coroutine called runtime.Goexit")

type coState uint8

const (
	stateRunnable coState = iota
	stateRunning
	stateSuspended
	stateDead
)

func (s coState) String() string {
	switch s {
	case stateRunnable:
		return "runnable"
	case stateRunning:
		return "running"
	case stateSuspended:
		return "suspended"
	default:
		return "dead"
	}
}

// Coroutine is a handle to a task scheduled by a [Runtime]. Exactly one
// coroutine of a runtime runs at a time; the others are suspended in a
// channel, in [Sleep] or [Yield], or waiting for their first turn.
//
// A Coroutine must not be used from outside its runtime.
type Coroutine struct {
	info    CoroutineInfo
	sched   *scheduler
	state   coState
	wake    chan struct{}
	killed  bool
	started time.Time
}

// ID returns the coroutine's runtime-unique ID, starting at 1.
func (co *Coroutine) ID() uint64 { return co.info.ID }

// Name returns the name given at spawn time.
func (co *Coroutine) Name() string { return co.info.Name }

// Info returns the coroutine's ID and name.
func (co *Coroutine) Info() CoroutineInfo { return co.info }

func (co *Coroutine) String() string {
	return fmt.Sprintf("coroutine %q (#%d)", co.info.Name, co.info.ID)
}

type coroutineKey struct{}

// CurrentCoroutine returns the coroutine carried by ctx. Every context
// handed to a [TaskFunc] carries its coroutine.
func CurrentCoroutine(ctx context.Context) (*Coroutine, bool) {
	co, ok := ctx.Value(coroutineKey{}).(*Coroutine)
	return co, ok
}

// mustCurrent returns the running coroutine of ctx, panicking with a
// [*MisuseError] when there is none.
func mustCurrent(ctx context.Context, op string) *Coroutine {
	co, ok := CurrentCoroutine(ctx)
	if !ok || co.sched.current != co {
		panic(&MisuseError{Op: op})
	}
	return co
}

// suspend hands control back to the loop until someone resumes co.
// A coroutine resumed only to be torn down exits via runtime.Goexit, so its
// deferred calls still run.
func (co *Coroutine) suspend() error {
	if co.killed {
		return ErrRuntimeClosed
	}
	co.state = stateSuspended
	co.sched.yield <- struct{}{}
	<-co.wake
	if co.killed {
		runtime.Goexit()
	}
	return nil
}

// Yield suspends the calling coroutine until the next loop iteration,
// letting every other ready coroutine run first.
func Yield(ctx context.Context) error {
	co := mustCurrent(ctx, "Yield")
	s := co.sched
	s.loop.Defer(func() { s.resume(co) })
	return co.suspend()
}

// Sleep suspends the calling coroutine for at least d.
func Sleep(ctx context.Context, d time.Duration) error {
	co := mustCurrent(ctx, "Sleep")
	s := co.sched
	t := s.loop.AfterFunc(d, func() { s.resume(co) })
	if err := co.suspend(); err != nil {
		t.Stop()
		return err
	}
	return nil
}

// scheduler runs coroutines one at a time on top of a reactor loop.
//
// Each coroutine is backed by a goroutine, but control is handed over
// explicitly: switchTo wakes the coroutine and blocks until it suspends or
// returns. Everything touching scheduler or channel state therefore runs
// with no other code of the runtime in flight.
type scheduler struct {
	rt   *Runtime
	loop *reactor.Loop
	log  logrus.FieldLogger
	cfg  config
	ctx  context.Context

	nextID  uint64
	current *Coroutine
	yield   chan struct{}
	live    map[uint64]*Coroutine
	closed  bool

	errs     []error
	panicked *PanicError

	spawned   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	errored   atomic.Int64
	panics    atomic.Int64
}

func newScheduler(loop *reactor.Loop, log logrus.FieldLogger, cfg config) *scheduler {
	return &scheduler{
		loop:  loop,
		log:   log,
		cfg:   cfg,
		ctx:   context.Background(),
		yield: make(chan struct{}),
		live:  make(map[uint64]*Coroutine),
	}
}

// spawn creates a coroutine whose first turn is deferred to the next loop
// iteration. Spawns after shutdown are dropped.
func (s *scheduler) spawn(name string, fn TaskFunc) *Coroutine {
	if s.closed {
		s.log.WithField("coroutine", name).Debug("spawn after shutdown ignored")
		return nil
	}

	s.nextID++
	co := &Coroutine{
		info:  CoroutineInfo{ID: s.nextID, Name: name},
		sched: s,
		state: stateRunnable,
		wake:  make(chan struct{}),
	}
	s.live[co.info.ID] = co
	s.spawned.Add(1)
	s.active.Add(1)

	go s.body(co, fn)
	s.loop.Defer(func() { s.switchTo(co) })

	s.log.WithFields(logrus.Fields{"coroutine": name, "id": co.info.ID}).Debug("coroutine spawned")
	return co
}

func (s *scheduler) body(co *Coroutine, fn TaskFunc) {
	defer func() { s.yield <- struct{}{} }()

	<-co.wake
	if co.killed {
		return
	}
	co.started = time.Now()

	ctx := context.WithValue(s.ctx, coroutineKey{}, co)
	sp := &spawner{rt: s.rt}
	sp.open.Store(true)
	defer sp.open.Store(false)

	returned := false
	defer func() {
		if !returned && !co.killed {
			s.finish(co, errGoexit)
		}
	}()

	err := s.exec(func() error {
		if s.cfg.onStart != nil {
			s.cfg.onStart(co.info)
		}
		return fn(ctx, sp)
	})
	returned = true
	s.finish(co, err)
}

// exec runs fn, converting a panic into a [*PanicError].
func (s *scheduler) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return fn()
}

func (s *scheduler) finish(co *Coroutine, err error) {
	co.state = stateDead
	delete(s.live, co.info.ID)
	s.active.Add(-1)
	s.completed.Add(1)

	elapsed := time.Since(co.started)
	log := s.log.WithFields(logrus.Fields{"coroutine": co.info.Name, "id": co.info.ID})

	if s.cfg.onDone != nil {
		s.cfg.onDone(co.info, err, elapsed)
	}

	if err == nil {
		log.WithField("elapsed", elapsed).Debug("coroutine done")
		return
	}

	if pe, ok := err.(*PanicError); ok {
		s.panics.Add(1)
		log.WithField("panic", pe.Value).Error("coroutine panicked")
		if !s.cfg.panicAsErr {
			if s.panicked == nil {
				s.panicked = pe
			}
			return
		}
	} else {
		s.errored.Add(1)
		log.WithError(err).Warn("coroutine failed")
	}
	s.errs = append(s.errs, &CoroutineError{Coroutine: co.info, Err: err})
}

// switchTo runs co until it suspends or returns. It must be called from loop
// context with no coroutine running.
func (s *scheduler) switchTo(co *Coroutine) {
	if s.current != nil {
		panic(fmt.Sprintf("corochan: switch to %s while %s is running", co, s.current))
	}
	if co.state == stateDead {
		return
	}
	s.current = co
	co.state = stateRunning
	co.wake <- struct{}{}
	<-s.yield
	s.current = nil
}

// resume makes a suspended coroutine run again: immediately when called
// from loop context, otherwise on the next loop iteration.
func (s *scheduler) resume(co *Coroutine) {
	if co.state != stateSuspended {
		panic(fmt.Sprintf("corochan: resume of %s in state %s", co, co.state))
	}
	if s.current == nil {
		s.switchTo(co)
		return
	}
	co.state = stateRunnable
	s.loop.Defer(func() { s.switchTo(co) })
}

// killAll tears down every coroutine that has not returned, oldest first.
// Suspended coroutines unwind through their deferred calls; ones that never
// ran just exit.
func (s *scheduler) killAll() int {
	s.closed = true
	if len(s.live) == 0 {
		return 0
	}

	ids := make([]uint64, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		co := s.live[id]
		co.killed = true
		s.current = co
		co.wake <- struct{}{}
		<-s.yield
		s.current = nil

		co.state = stateDead
		delete(s.live, id)
		s.active.Add(-1)
		s.log.WithFields(logrus.Fields{"coroutine": co.info.Name, "id": id}).Debug("coroutine killed")
	}
	return len(ids)
}
