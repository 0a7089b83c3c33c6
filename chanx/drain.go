package chanx

import (
	"context"
	"errors"

	"github.com/baxromumarov/corochan"
)

// Drain pops values from ch until it is closed and returns them in order.
// It must be called from a coroutine. Use it to unblock producers during
// shutdown or to collect the output of a finished stage.
func Drain[T any](ctx context.Context, ch *corochan.Channel[T]) ([]T, error) {
	var out []T
	for {
		v, err := ch.Pop(ctx, 0)
		if errors.Is(err, corochan.ErrClosed) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
