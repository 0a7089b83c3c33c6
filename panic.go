package corochan

import (
	"fmt"
	"runtime"
)

// PanicError wraps a value recovered from a panicking coroutine together
// with the stack trace captured at the point of the panic.
//
// With [WithPanicAsError], panics are returned from [Runtime.Run] as
// *PanicError wrapped in a [*CoroutineError]. Otherwise Run stops the loop,
// unwinds the remaining coroutines and re-raises the *PanicError.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the coroutine's stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *PanicError {
	if pe, ok := v.(*PanicError); ok {
		return pe
	}
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}
