//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package reactor

// NewEventfdWaker is only available on Linux.
func NewEventfdWaker() (Waker, error) {
	return nil, ErrUnsupported
}

// NewPipeWaker is only available on Unix systems.
func NewPipeWaker() (Waker, error) {
	return nil, ErrUnsupported
}

func newPlatformWaker() (Waker, error) {
	return NewChanWaker(), nil
}
