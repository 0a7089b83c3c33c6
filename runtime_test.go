package corochan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPanic(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		require.Contains(t, fmt.Sprint(r), contains)
	}()
	fn()
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithLogLevel(logrus.WarnLevel)}, opts...)
	rt, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRunReturnsNilOnSuccess(t *testing.T) {
	var ran atomic.Bool
	err := Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		ran.Store(true)
		return nil
	}, WithLogLevel(logrus.WarnLevel))
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestRunCollectsCoroutineErrors(t *testing.T) {
	rt := newTestRuntime(t)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		sp.Go("a", func(ctx context.Context) error { return errA })
		sp.Go("b", func(ctx context.Context) error { return errB })
		sp.Go("ok", func(ctx context.Context) error { return nil })
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	all := AllCoroutineErrors(err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Coroutine.Name)
	assert.Equal(t, "b", all[1].Coroutine.Name)

	info, ok := CoroutineOf(err)
	require.True(t, ok)
	assert.Equal(t, "a", info.Name)
	assert.Equal(t, errA, CauseOf(err))

	stats := rt.Stats()
	assert.Equal(t, int64(4), stats.Spawned)
	assert.Equal(t, int64(4), stats.Completed)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(2), stats.Errored)
}

func TestRunIsSingleUse(t *testing.T) {
	rt := newTestRuntime(t)
	noop := func(ctx context.Context, sp Spawner) error { return nil }

	require.NoError(t, rt.Run(context.Background(), noop))
	assert.ErrorIs(t, rt.Run(context.Background(), noop), ErrRuntimeClosed)
	assert.ErrorIs(t, rt.Submit(func() {}), ErrRuntimeClosed)

	select {
	case <-rt.Done():
	default:
		t.Fatal("Done should be closed after Run returns")
	}
}

func TestRunPanicReraised(t *testing.T) {
	rt := newTestRuntime(t)

	defer func() {
		r := recover()
		require.NotNil(t, r, "Run should re-raise the coroutine panic")
		pe, ok := r.(*PanicError)
		require.True(t, ok, "panic value should be *PanicError, got %T", r)
		assert.Equal(t, "boom", pe.Value)
		assert.Contains(t, pe.Stack, "goroutine")
	}()

	_ = rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		panic("boom")
	})
}

func TestRunPanicAsError(t *testing.T) {
	rt := newTestRuntime(t, WithPanicAsError())

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		sp.Go("bad", func(ctx context.Context) error {
			panic("boom")
		})
		return nil
	})
	require.Error(t, err)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.True(t, IsCoroutineError(err))
	assert.Equal(t, int64(1), rt.Stats().Panicked)
}

func TestRunDetectsDeadlock(t *testing.T) {
	rt := newTestRuntime(t)
	var unwound atomic.Bool

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		defer unwound.Store(true)
		ch := NewChannel[int](rt, 1)
		_, err := ch.Pop(ctx, 0)
		return err
	})
	assert.ErrorIs(t, err, ErrDeadlock)
	assert.True(t, unwound.Load(), "suspended coroutine should run its deferred calls")
	assert.Equal(t, int64(0), rt.Stats().Active)
}

func TestRunContextCancel(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rt.Run(ctx, func(ctx context.Context, sp Spawner) error {
		return Sleep(ctx, time.Hour)
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunHooks(t *testing.T) {
	var started, done, failed atomic.Int32
	rt := newTestRuntime(t,
		WithOnStart(func(CoroutineInfo) { started.Add(1) }),
		WithOnDone(func(info CoroutineInfo, err error, _ time.Duration) {
			done.Add(1)
			if err != nil {
				failed.Add(1)
			}
		}),
	)

	_ = rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		sp.Go("ok", func(ctx context.Context) error { return nil })
		sp.Go("fail", func(ctx context.Context) error { return errors.New("x") })
		return nil
	})

	assert.Equal(t, int32(3), started.Load())
	assert.Equal(t, int32(3), done.Load())
	assert.Equal(t, int32(1), failed.Load())
}

func TestYieldInterleaves(t *testing.T) {
	rt := newTestRuntime(t)
	var trace []string

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		for _, name := range []string{"a", "b"} {
			sp.Go(name, func(ctx context.Context) error {
				for i := range 3 {
					trace = append(trace, fmt.Sprintf("%s%d", name, i))
					if err := Yield(ctx); err != nil {
						return err
					}
				}
				return nil
			})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0", "a1", "b1", "a2", "b2"}, trace)
}

func TestSleepWaitsAtLeastDuration(t *testing.T) {
	rt := newTestRuntime(t)
	var elapsed time.Duration

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		start := time.Now()
		if err := Sleep(ctx, 15*time.Millisecond); err != nil {
			return err
		}
		elapsed = time.Since(start)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}

func TestCurrentCoroutine(t *testing.T) {
	rt := newTestRuntime(t)
	var ids []uint64

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		co, ok := CurrentCoroutine(ctx)
		if !ok {
			return errors.New("no coroutine in context")
		}
		ids = append(ids, co.ID())
		assert.Equal(t, "main", co.Name())

		sp.Go("child", func(ctx context.Context) error {
			co, _ := CurrentCoroutine(ctx)
			ids = append(ids, co.ID())
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	_, ok := CurrentCoroutine(context.Background())
	assert.False(t, ok)
}

func TestMisuseOutsideCoroutine(t *testing.T) {
	mustPanic(t, "Yield must be called from a coroutine", func() {
		_ = Yield(context.Background())
	})
	mustPanic(t, "Sleep must be called from a coroutine", func() {
		_ = Sleep(context.Background(), time.Millisecond)
	})
}

func TestSpawnAfterReturnPanics(t *testing.T) {
	rt := newTestRuntime(t, WithPanicAsError())
	var leaked Spawner

	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		leaked = sp
		return nil
	})
	require.NoError(t, err)
	mustPanic(t, "Spawn called after the spawning coroutine returned", func() {
		leaked.Go("late", func(ctx context.Context) error { return nil })
	})
}

func TestRuntimeGoFromOtherGoroutine(t *testing.T) {
	rt := newTestRuntime(t, WithWaker("auto"))
	ch := NewChannel[string](rt, 0)
	release := rt.Hold()

	go func() {
		defer release()
		time.Sleep(10 * time.Millisecond)
		_ = rt.Go("external", func(ctx context.Context, _ Spawner) error {
			return ch.Push(ctx, "hello")
		})
	}()

	var got string
	err := rt.Run(context.Background(), func(ctx context.Context, sp Spawner) error {
		v, err := ch.Pop(ctx, 0)
		got = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, int64(2), rt.Stats().Spawned)
}

func TestRuntimeIDUnique(t *testing.T) {
	a := newTestRuntime(t)
	b := newTestRuntime(t)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewRejectsUnknownWaker(t *testing.T) {
	_, err := New(WithWaker("carrier-pigeon"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown waker kind")
}

func TestCloseIsIdempotent(t *testing.T) {
	rt, err := New(WithLogLevel(logrus.WarnLevel))
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	assert.ErrorIs(t, rt.Submit(func() {}), ErrRuntimeClosed)
}
