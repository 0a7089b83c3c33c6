package chanx

import (
	"context"
	"errors"
	"fmt"

	"github.com/baxromumarov/corochan"
)

// Merge spawns one coroutine per input that moves its values into out
// (fan-in). out is closed after every input has been closed. Values of one
// input keep their order; the interleaving between inputs follows the
// scheduler.
//
// A push into out that fails because out was closed early stops that
// input's coroutine without an error.
func Merge[T any](sp corochan.Spawner, out *corochan.Channel[T], ins ...*corochan.Channel[T]) {
	if len(ins) == 0 {
		out.Close()
		return
	}

	left := len(ins)
	for i, in := range ins {
		sp.Go(fmt.Sprintf("chanx.merge-%d", i), func(ctx context.Context) error {
			defer func() {
				if left--; left == 0 {
					out.Close()
				}
			}()

			for {
				v, err := in.Pop(ctx, 0)
				if errors.Is(err, corochan.ErrClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := out.Push(ctx, v); err != nil {
					if errors.Is(err, corochan.ErrClosed) {
						return nil
					}
					return err
				}
			}
		})
	}
}
