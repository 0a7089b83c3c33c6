package corochan

import (
	"context"
	"time"
)

// Semaphore bounds how many coroutines hold a slot at once. Waiting
// coroutines suspend and are admitted in FIFO order.
//
// It is a [Channel] of n tokens: Acquire pops one, Release pushes it back.
type Semaphore struct {
	tokens   *Channel[struct{}]
	acquired int
}

// NewSemaphore creates a semaphore with n slots on rt.
// Panics if n <= 0.
func NewSemaphore(rt *Runtime, n int) *Semaphore {
	if n <= 0 {
		panic("corochan: NewSemaphore requires n > 0")
	}
	s := &Semaphore{tokens: NewChannel[struct{}](rt, n, Named("semaphore"))}
	for range n {
		_ = s.tokens.TryPush(struct{}{})
	}
	return s
}

// Acquire suspends the calling coroutine until a slot is free. A positive
// timeout bounds the wait and yields [ErrTimeout] on expiry.
func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) error {
	if _, err := s.tokens.Pop(ctx, timeout); err != nil {
		return err
	}
	s.acquired++
	return nil
}

// TryAcquire takes a slot if one is free right now.
func (s *Semaphore) TryAcquire() bool {
	if _, err := s.tokens.TryPop(); err != nil {
		return false
	}
	s.acquired++
	return true
}

// Release frees a slot, waking the oldest waiter if any.
// Panics if more slots are released than acquired.
func (s *Semaphore) Release() {
	if s.acquired == 0 {
		panic("corochan: Semaphore.Release called without matching Acquire")
	}
	s.acquired--
	if err := s.tokens.TryPush(struct{}{}); err != nil {
		panic("corochan: Semaphore.Release: " + err.Error())
	}
}

// Available returns the number of free slots. Tokens already promised to a
// woken waiter are not free.
func (s *Semaphore) Available() int {
	st := s.tokens.Stats()
	return max(st.Len-st.PendingConsumers, 0)
}
