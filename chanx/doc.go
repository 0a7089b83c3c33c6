// Package chanx provides bridges and combinators for corochan channels.
//
// A [corochan.Channel] may only be touched from coroutines of its runtime.
// chanx connects it to the rest of a program:
//
//   - [Send] and [Recv]: push to or pop from a coroutine channel from any
//     goroutine, waiting without blocking the runtime's loop.
//   - [Forward]: pump a native Go channel into a coroutine channel,
//     closing it when the input closes.
//   - [Drain]: collect every remaining value of a channel from a coroutine.
//   - [Merge]: fan-in of several coroutine channels into one.
//
// The bridging functions submit short-lived coroutines through
// [corochan.Runtime.Go], which wakes the loop through its wakeup transport.
// They return when ctx is cancelled or the runtime stops running.
package chanx
