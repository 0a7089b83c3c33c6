package corochan

import (
	"context"
	"sync/atomic"
)

// TaskFunc is the body of a coroutine. ctx carries the coroutine (see
// [CurrentCoroutine]) and is what blocking calls such as [Channel.Push],
// [Channel.Pop], [Sleep] and [Yield] expect. sp spawns sibling coroutines.
type TaskFunc func(ctx context.Context, sp Spawner) error

// Spawner starts coroutines on a runtime.
type Spawner interface {
	// Spawn starts a new coroutine with the given name. It first runs on the
	// next loop iteration, after the caller suspends or returns.
	Spawn(name string, fn TaskFunc)

	// Go is Spawn for coroutines that do not spawn further work.
	Go(name string, fn func(ctx context.Context) error)

	// Runtime returns the runtime the coroutines run on.
	Runtime() *Runtime
}

// spawner is handed to each coroutine. It is valid only while that
// coroutine runs; spawning after it returns panics.
type spawner struct {
	rt   *Runtime
	open atomic.Bool
}

func (sp *spawner) Spawn(name string, fn TaskFunc) {
	if fn == nil {
		panic("corochan: Spawn requires a non-nil TaskFunc")
	}
	if !sp.open.Load() {
		panic("corochan: Spawn called after the spawning coroutine returned")
	}
	sp.rt.sched.spawn(name, fn)
}

func (sp *spawner) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		panic("corochan: Go requires a non-nil function")
	}
	sp.Spawn(name, func(ctx context.Context, _ Spawner) error {
		return fn(ctx)
	})
}

func (sp *spawner) Runtime() *Runtime {
	return sp.rt
}
