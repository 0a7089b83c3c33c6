package chanx

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/corochan"
)

func newRuntime(t *testing.T) *corochan.Runtime {
	t.Helper()
	rt, err := corochan.New(corochan.WithLogLevel(logrus.WarnLevel))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestForward(t *testing.T) {
	rt := newRuntime(t)
	out := corochan.NewChannel[int](rt, 2)
	in := make(chan int)

	release := rt.Hold()
	fwdErr := make(chan error, 1)
	go func() {
		defer release()
		fwdErr <- Forward(context.Background(), rt, in, out)
	}()
	go func() {
		for i := range 5 {
			in <- i
		}
		close(in)
	}()

	var got []int
	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		var err error
		got, err = Drain(ctx, out)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.NoError(t, <-fwdErr)
	assert.True(t, out.Closed())
}

func TestForwardContextCancel(t *testing.T) {
	rt := newRuntime(t)
	out := corochan.NewChannel[int](rt, 1)
	ctx, cancel := context.WithCancel(context.Background())

	fwdErr := make(chan error, 1)
	go func() {
		fwdErr <- Forward(ctx, rt, make(chan int), out)
	}()

	cancel()
	select {
	case err := <-fwdErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Forward did not return after cancel")
	}
}

func TestSendRecv(t *testing.T) {
	rt := newRuntime(t)
	ch := corochan.NewChannel[string](rt, 0)
	release := rt.Hold()

	recvd := make(chan string, 1)
	go func() {
		defer release()
		assert.NoError(t, Send(context.Background(), rt, ch, "ping"))
		v, err := Recv(context.Background(), rt, ch, time.Second)
		assert.NoError(t, err)
		recvd <- v
	}()

	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		v, err := ch.Pop(ctx, 0)
		if err != nil {
			return err
		}
		return ch.Push(ctx, v+"/pong")
	})
	require.NoError(t, err)
	assert.Equal(t, "ping/pong", <-recvd)
}

func TestSendAfterRunReturns(t *testing.T) {
	rt := newRuntime(t)
	ch := corochan.NewChannel[int](rt, 1)
	require.NoError(t, rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		return nil
	}))

	assert.ErrorIs(t, Send(context.Background(), rt, ch, 1), corochan.ErrRuntimeClosed)
}

func TestRecvTimeout(t *testing.T) {
	rt := newRuntime(t)
	ch := corochan.NewChannel[int](rt, 0)
	finished := corochan.NewChannel[struct{}](rt, 1)
	release := rt.Hold()

	recvErr := make(chan error, 1)
	go func() {
		defer release()
		_, err := Recv(context.Background(), rt, ch, 5*time.Millisecond)
		recvErr <- err
		assert.NoError(t, Send(context.Background(), rt, finished, struct{}{}))
	}()

	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		_, err := finished.Pop(ctx, 0)
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-recvErr, corochan.ErrTimeout)
}

func TestDrain(t *testing.T) {
	rt := newRuntime(t)

	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		ch := corochan.NewChannel[int](rt, 8)
		for i := range 3 {
			require.NoError(t, ch.TryPush(i))
		}
		ch.Close()

		got, err := Drain(ctx, ch)
		assert.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestMerge(t *testing.T) {
	rt := newRuntime(t)
	var got []int

	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		a := corochan.NewChannel[int](rt, 1)
		b := corochan.NewChannel[int](rt, 0)
		out := corochan.NewChannel[int](rt, 4)

		Merge(sp, out, a, b)

		sp.Go("feed-a", func(ctx context.Context) error {
			defer a.Close()
			for _, v := range []int{1, 2, 3} {
				if err := a.Push(ctx, v); err != nil {
					return err
				}
			}
			return nil
		})
		sp.Go("feed-b", func(ctx context.Context) error {
			defer b.Close()
			for _, v := range []int{10, 20} {
				if err := b.Push(ctx, v); err != nil {
					return err
				}
			}
			return nil
		})

		var err error
		got, err = Drain(ctx, out)
		return err
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 10, 20}, got)

	var fromA []int
	for _, v := range got {
		if v < 10 {
			fromA = append(fromA, v)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, fromA, "order within one input is kept")
}

func TestMergeNoInputs(t *testing.T) {
	rt := newRuntime(t)

	err := rt.Run(context.Background(), func(ctx context.Context, sp corochan.Spawner) error {
		out := corochan.NewChannel[int](rt, 1)
		Merge(sp, out)
		assert.True(t, out.Closed())
		return nil
	})
	require.NoError(t, err)
}
