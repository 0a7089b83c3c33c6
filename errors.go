package corochan

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by [Channel.Pop] when its deadline expires
	// before a value arrives. No value is dequeued.
	ErrTimeout = errors.New("corochan: pop timed out")

	// ErrClosed is returned by channel operations on a closed [Channel]:
	// every Push, and Pop once the buffer is drained.
	ErrClosed = errors.New("corochan: channel is closed")

	// ErrWouldBlock is returned by the non-suspending variants
	// ([Channel.TryPush], [Channel.TryPop]) when the operation would wait.
	ErrWouldBlock = errors.New("corochan: operation would block")

	// ErrDeadlock is returned by [Runtime.Run] when coroutines are still
	// suspended but nothing left in the loop could ever resume them.
	ErrDeadlock = errors.New("corochan: all coroutines are asleep - deadlock")

	// ErrRuntimeClosed is returned when using a [Runtime] that has finished
	// running or has been closed.
	ErrRuntimeClosed = errors.New("corochan: runtime is closed")
)

// MisuseError is the panic value raised when a blocking channel operation
// is invoked without a coroutine in its context. There is no coroutine to
// suspend and resume later, so the caller is aborted instead.
type MisuseError struct {
	Op string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("corochan: %s must be called from a coroutine", e.Op)
}

// CoroutineError wraps an error together with the [CoroutineInfo] of the
// coroutine that returned it. [Runtime.Run] wraps every coroutine failure in
// a CoroutineError so callers can attribute errors.
type CoroutineError struct {
	Coroutine CoroutineInfo
	Err       error
}

func (e *CoroutineError) Error() string {
	return fmt.Sprintf("coroutine %q (#%d) failed: %v", e.Coroutine.Name, e.Coroutine.ID, e.Err)
}

func (e *CoroutineError) Unwrap() error {
	return e.Err
}

// IsCoroutineError reports whether err (or any error in its chain) is a
// [*CoroutineError].
func IsCoroutineError(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoroutineError
	return errors.As(err, &ce)
}

// CoroutineOf extracts the [CoroutineInfo] from the first [*CoroutineError]
// in err's chain.
func CoroutineOf(err error) (CoroutineInfo, bool) {
	var ce *CoroutineError
	if errors.As(err, &ce) {
		return ce.Coroutine, true
	}
	return CoroutineInfo{}, false
}

// CauseOf unwraps the first [*CoroutineError] in err's chain and returns its
// underlying cause. Other errors are returned as-is.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}

	var ce *CoroutineError
	if errors.As(err, &ce) {
		return ce.Err
	}

	return err
}

// AllCoroutineErrors returns the [*CoroutineError]s joined into an error
// returned by [Runtime.Run], in the order the coroutines finished.
func AllCoroutineErrors(err error) []*CoroutineError {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	var out []*CoroutineError
	for _, e := range errs {
		var ce *CoroutineError
		if errors.As(e, &ce) {
			out = append(out, ce)
		}
	}
	return out
}
