// Package reactor provides the single-goroutine event loop that drives
// corochan coroutines.
//
// A [Loop] owns three kinds of work:
//
//   - Deferred callbacks ([Loop.Defer]): run exactly once, in FIFO order, on
//     the next loop iteration. Work deferred while a batch is running lands
//     in the following batch.
//   - Timers ([Loop.AfterFunc]): one-shot callbacks fired after a delay,
//     cancellable with [Timer.Stop].
//   - Ingress ([Loop.Submit]): callbacks handed over from other goroutines.
//     Submit is the only method that is safe to call off the loop.
//
// When there is nothing to run, the loop blocks in its [Waker] until the next
// timer is due or another goroutine writes a wakeup token. Tokens are
// coalesced: at most one is written between two polls.
//
// # Wakers
//
// The wakeup transport is pluggable:
//
//   - eventfd (Linux): a single counter fd, see [NewEventfdWaker].
//   - self-pipe (other Unix systems): see [NewPipeWaker].
//   - chan: a one-slot Go channel, portable, see [NewChanWaker].
//
// [NewWaker] picks one by name; "auto" selects the best available on the
// current platform.
package reactor
