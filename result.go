package corochan

import "context"

// Result holds the outcome of a coroutine that produces a typed value.
// Create one via [SpawnResult].
type Result[T any] struct {
	ch   *Channel[result[T]]
	done bool
	res  result[T]
}

type result[T any] struct {
	val T
	err error
}

// SpawnResult spawns a named coroutine running fn and captures its value.
// A panic in fn is delivered to waiters as a [*PanicError] and then handled
// by the runtime like any other coroutine panic.
/* Example:
	r := corochan.SpawnResult(sp, "compute", func(ctx context.Context) (int, error) {
		return expensiveCalc(ctx)
	})
	val, err := r.Wait(ctx)
*/
func SpawnResult[T any](
	sp Spawner,
	name string,
	fn func(ctx context.Context) (T, error),
) *Result[T] {
	r := &Result[T]{ch: NewChannel[result[T]](sp.Runtime(), 1, Named("result:"+name))}

	sp.Spawn(name, func(ctx context.Context, _ Spawner) error {
		defer func() {
			if p := recover(); p != nil {
				pe := newPanicError(p)
				_ = r.ch.TryPush(result[T]{err: pe})
				panic(pe)
			}
		}()

		v, err := fn(ctx)
		_ = r.ch.TryPush(result[T]{val: v, err: err})
		return err
	})

	return r
}

// Wait suspends the calling coroutine until the value is available and
// returns it. Any number of coroutines may wait; all see the same outcome.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	if r.done {
		return r.res.val, r.res.err
	}

	res, err := r.ch.Pop(ctx, 0)
	switch {
	case err == nil:
		r.res = res
		r.done = true
		r.ch.Close()
	case r.done:
		// Another waiter took the value and closed the channel.
	default:
		var zero T
		return zero, err
	}
	return r.res.val, r.res.err
}

// Ready reports whether the value has been produced.
func (r *Result[T]) Ready() bool {
	return r.done || r.ch.Len() > 0
}
