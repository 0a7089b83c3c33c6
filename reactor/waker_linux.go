//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NewEventfdWaker returns a waker backed by a non-blocking eventfd.
func NewEventfdWaker() (Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	return &fdWaker{r: fd, w: fd, eventfd: true}, nil
}

func newPlatformWaker() (Waker, error) {
	return NewEventfdWaker()
}
