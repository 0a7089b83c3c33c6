//go:build linux || darwin || freebsd || netbsd || openbsd

package reactor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// fdWaker is a byte-stream wakeup transport: the write end is used by
// notifiers, the read end is polled by the loop. For eventfd both ends are
// the same descriptor.
type fdWaker struct {
	r, w    int
	eventfd bool

	// mu keeps Close from releasing the descriptors under a concurrent Wake.
	mu     sync.RWMutex
	closed bool
}

// NewPipeWaker returns a self-pipe waker.
func NewPipeWaker() (Waker, error) {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return nil, fmt.Errorf("reactor: pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("reactor: set nonblock: %w", err)
		}
	}
	return &fdWaker{r: p[0], w: p[1]}, nil
}

func (w *fdWaker) Wake() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}

	var err error
	if w.eventfd {
		var buf [8]byte
		buf[0] = 1 // any nonzero increment will do
		_, err = unix.Write(w.w, buf[:])
	} else {
		_, err = unix.Write(w.w, []byte{1})
	}
	// A full pipe or saturated counter already carries a pending token.
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("reactor: wake: %w", err)
	}
	return nil
}

func (w *fdWaker) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(w.r), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollTimeout(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("reactor: poll: %w", err)
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

func (w *fdWaker) Drain() error {
	var buf [64]byte
	for {
		_, err := unix.Read(w.r, buf[:])
		if err == nil {
			if w.eventfd {
				// eventfd reads reset the counter in one go.
				return nil
			}
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fmt.Errorf("reactor: drain: %w", err)
	}
}

func (w *fdWaker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := unix.Close(w.r)
	if w.w != w.r {
		err = errors.Join(err, unix.Close(w.w))
	}
	return err
}

// pollTimeout converts a duration into poll(2) milliseconds, rounding
// sub-millisecond delays up so the loop does not spin.
func pollTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d == 0 {
		return 0
	}
	if d < time.Millisecond {
		return 1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
