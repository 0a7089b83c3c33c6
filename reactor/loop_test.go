package reactor

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

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

func newTestLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New(NewChanWaker(), opts...)
	t.Cleanup(func() { _ = l.Shutdown() })
	return l
}

func TestLoopDeferFIFO(t *testing.T) {
	l := newTestLoop(t)

	var got []int
	for i := range 5 {
		l.Defer(func() { got = append(got, i) })
	}
	require.NoError(t, l.Tick())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.True(t, l.Idle())
}

func TestLoopDeferRunsOnNextIteration(t *testing.T) {
	l := newTestLoop(t)

	var order []string
	l.Defer(func() {
		order = append(order, "first")
		l.Defer(func() { order = append(order, "nested") })
	})
	l.Defer(func() { order = append(order, "second") })

	require.NoError(t, l.Tick())
	assert.Equal(t, []string{"first", "second"}, order,
		"work deferred during a batch must wait for the next iteration")
	assert.Equal(t, 1, l.Pending())

	require.NoError(t, l.Tick())
	assert.Equal(t, []string{"first", "second", "nested"}, order)
}

func TestLoopBudget(t *testing.T) {
	l := newTestLoop(t, WithBudget(2))

	var got []int
	for i := range 5 {
		l.Defer(func() { got = append(got, i) })
	}

	require.NoError(t, l.Tick())
	assert.Equal(t, []int{0, 1}, got)

	l.Defer(func() { got = append(got, 99) })
	require.NoError(t, l.Tick())
	assert.Equal(t, []int{0, 1, 2, 3}, got, "leftovers run before newer work")

	require.NoError(t, l.Tick())
	require.NoError(t, l.Tick())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
}

func TestLoopBudgetPanicsOnNegative(t *testing.T) {
	mustPanic(t, "budget must be non-negative", func() {
		WithBudget(-1)
	})
}

func TestLoopTimersFireInDeadlineOrder(t *testing.T) {
	l := newTestLoop(t)

	var got []string
	l.AfterFunc(30*time.Millisecond, func() { got = append(got, "late") })
	l.AfterFunc(10*time.Millisecond, func() { got = append(got, "early") })
	l.AfterFunc(10*time.Millisecond, func() { got = append(got, "early-2") })

	start := time.Now()
	for l.Timers() > 0 {
		require.NoError(t, l.Tick())
	}

	assert.Equal(t, []string{"early", "early-2", "late"}, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLoopTimerStop(t *testing.T) {
	l := newTestLoop(t)

	var fired atomic.Bool
	tm := l.AfterFunc(5*time.Millisecond, func() { fired.Store(true) })
	assert.Equal(t, 1, l.Timers())

	assert.True(t, tm.Stop(), "first Stop cancels the timer")
	assert.False(t, tm.Stop(), "second Stop is a no-op")
	assert.Equal(t, 0, l.Timers())

	time.Sleep(10 * time.Millisecond)
	l.Defer(func() {})
	require.NoError(t, l.Tick())
	assert.False(t, fired.Load())
}

func TestLoopTimerStopAfterFire(t *testing.T) {
	l := newTestLoop(t)

	tm := l.AfterFunc(time.Millisecond, func() {})
	for l.Timers() > 0 {
		require.NoError(t, l.Tick())
	}
	assert.False(t, tm.Stop())
}

func TestLoopSubmitWakesBlockedPoll(t *testing.T) {
	for _, kind := range []string{WakerChan, WakerAuto} {
		t.Run(kind, func(t *testing.T) {
			w, err := NewWaker(kind)
			require.NoError(t, err)
			l := New(w)
			defer l.Shutdown()

			release := l.Hold()
			assert.False(t, l.Idle(), "a hold keeps the loop busy")

			var ran atomic.Bool
			go func() {
				time.Sleep(20 * time.Millisecond)
				assert.NoError(t, l.Submit(func() { ran.Store(true) }))
			}()

			start := time.Now()
			require.NoError(t, l.Tick()) // blocks until the submit wakes it
			assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

			release()
			require.NoError(t, l.Tick())
			assert.True(t, ran.Load())
			assert.True(t, l.Idle())
		})
	}
}

func TestLoopWakeCoalesces(t *testing.T) {
	l := newTestLoop(t)

	for range 10 {
		require.NoError(t, l.Wake())
	}
	assert.Equal(t, uint64(1), l.Stats().Wakeups, "only one token in flight")

	l.Defer(func() {})
	require.NoError(t, l.Tick())

	require.NoError(t, l.Wake())
	assert.Equal(t, uint64(2), l.Stats().Wakeups, "draining re-arms the wakeup")
}

func TestLoopShutdownRejectsSubmit(t *testing.T) {
	l := New(NewChanWaker())
	require.NoError(t, l.Shutdown())
	require.NoError(t, l.Shutdown(), "Shutdown is idempotent")

	err := l.Submit(func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoopStats(t *testing.T) {
	l := newTestLoop(t)

	l.Defer(func() {})
	l.Defer(func() {})
	require.NoError(t, l.Tick())

	st := l.Stats()
	assert.Equal(t, uint64(1), st.Ticks)
	assert.Equal(t, uint64(2), st.Executed)
	assert.Equal(t, int64(0), st.Holds)
}
