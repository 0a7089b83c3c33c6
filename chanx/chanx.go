package chanx

import (
	"context"
	"time"

	"github.com/baxromumarov/corochan"
)

// Send pushes v into ch from outside the runtime and waits until the push
// completes. It returns the push error, ctx.Err() if ctx is cancelled
// first, or [corochan.ErrRuntimeClosed] if the runtime stops.
//
// When ctx is cancelled the push stays queued and may still complete.
func Send[T any](ctx context.Context, rt *corochan.Runtime, ch *corochan.Channel[T], v T) error {
	return onLoop(ctx, rt, "chanx.send", func(ctx context.Context) error {
		return ch.Push(ctx, v)
	})
}

// Recv pops a value from ch from outside the runtime, waiting up to timeout
// (forever if timeout <= 0).
func Recv[T any](ctx context.Context, rt *corochan.Runtime, ch *corochan.Channel[T], timeout time.Duration) (T, error) {
	var v T
	err := onLoop(ctx, rt, "chanx.recv", func(ctx context.Context) error {
		var err error
		v, err = ch.Pop(ctx, timeout)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Forward pushes every value received from in into out, in order, and
// closes out once in is closed. It keeps the runtime from reporting a
// deadlock while it runs; to cover the time before Forward starts, take a
// [corochan.Runtime.Hold] before starting the goroutine that calls it.
func Forward[T any](ctx context.Context, rt *corochan.Runtime, in <-chan T, out *corochan.Channel[T]) error {
	release := rt.Hold()
	defer release()

	for {
		select {
		case v, ok := <-in:
			if !ok {
				return onLoop(ctx, rt, "chanx.forward.close", func(context.Context) error {
					out.Close()
					return nil
				})
			}
			if err := Send(ctx, rt, out, v); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-rt.Done():
			return corochan.ErrRuntimeClosed
		}
	}
}

// onLoop runs fn in a new coroutine of rt and waits for its result.
func onLoop(ctx context.Context, rt *corochan.Runtime, name string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := rt.Go(name, func(ctx context.Context, _ corochan.Spawner) error {
		done <- fn(ctx)
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-rt.Done():
		// The coroutine may have finished right before Run returned.
		select {
		case err := <-done:
			return err
		default:
			return corochan.ErrRuntimeClosed
		}
	}
}
