package reactor

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned when a waker kind is not available on the
// current platform.
var ErrUnsupported = errors.New("reactor: waker not supported on this platform")

// Waker is the wakeup transport between notifiers and the loop's blocking
// wait. Wake must be safe to call from any goroutine; the other methods are
// only called by the loop.
type Waker interface {
	// Wake writes a wakeup token. Payload content is irrelevant.
	Wake() error

	// Wait blocks until a token is readable or timeout elapses.
	// A negative timeout waits forever. It reports whether a token is
	// readable.
	Wait(timeout time.Duration) (bool, error)

	// Drain consumes every pending token without blocking.
	Drain() error

	// Close releases the transport.
	Close() error
}

// Waker kinds accepted by [NewWaker].
const (
	WakerAuto    = "auto"
	WakerEventfd = "eventfd"
	WakerPipe    = "pipe"
	WakerChan    = "chan"
)

// NewWaker builds a waker by kind. An empty kind means [WakerAuto].
func NewWaker(kind string) (Waker, error) {
	switch kind {
	case "", WakerAuto:
		return newPlatformWaker()
	case WakerEventfd:
		return NewEventfdWaker()
	case WakerPipe:
		return NewPipeWaker()
	case WakerChan:
		return NewChanWaker(), nil
	default:
		return nil, fmt.Errorf("reactor: unknown waker kind %q", kind)
	}
}

// chanWaker coalesces wakeups in a one-slot buffered channel.
type chanWaker struct {
	ch chan struct{}
}

// NewChanWaker returns a portable waker backed by a buffered Go channel.
func NewChanWaker() Waker {
	return &chanWaker{ch: make(chan struct{}, 1)}
}

func (w *chanWaker) Wake() error {
	select {
	case w.ch <- struct{}{}:
	default:
	}
	return nil
}

func (w *chanWaker) Wait(timeout time.Duration) (bool, error) {
	if timeout == 0 {
		select {
		case <-w.ch:
			w.refill()
			return true, nil
		default:
			return false, nil
		}
	}

	if timeout < 0 {
		<-w.ch
		w.refill()
		return true, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.ch:
		w.refill()
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// refill puts the token back so Wait stays level-triggered until Drain.
func (w *chanWaker) refill() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *chanWaker) Drain() error {
	select {
	case <-w.ch:
	default:
	}
	return nil
}

func (w *chanWaker) Close() error { return nil }
