//go:build darwin || freebsd || netbsd || openbsd

package reactor

// NewEventfdWaker is only available on Linux.
func NewEventfdWaker() (Waker, error) {
	return nil, ErrUnsupported
}

func newPlatformWaker() (Waker, error) {
	return NewPipeWaker()
}
