// Package corochan provides bounded FIFO channels for cooperatively
// scheduled coroutines.
//
// A coroutine is a task that runs only when a single event loop hands it
// control, and gives control back when it blocks on a channel, sleeps or
// yields. Only one coroutine of a [Runtime] runs at any moment, so channel
// state needs no locks, and a suspended coroutine costs a parked goroutine
// rather than a blocked thread.
//
// # Running Coroutines
//
// [New] builds a [Runtime]; [Runtime.Run] spawns a root coroutine and drives
// the loop until every coroutine has returned:
//
//	rt, err := corochan.New(corochan.WithName("ingest"))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	err = rt.Run(ctx, func(ctx context.Context, sp corochan.Spawner) error {
//	    ch := corochan.NewChannel[int](rt, 16)
//	    sp.Go("producer", func(ctx context.Context) error {
//	        defer ch.Close()
//	        for i := range 100 {
//	            if err := ch.Push(ctx, i); err != nil {
//	                return err
//	            }
//	        }
//	        return nil
//	    })
//	    for {
//	        v, err := ch.Pop(ctx, time.Second)
//	        if errors.Is(err, corochan.ErrClosed) {
//	            return nil
//	        }
//	        if err != nil {
//	            return err
//	        }
//	        fmt.Println(v)
//	    }
//	})
//
// [Run] does the same for a throwaway runtime. The context passed to a
// [TaskFunc] carries its coroutine; blocking calls take that context and
// panic with a [*MisuseError] when given any other.
//
// # Channels
//
// [Channel.Push] suspends while the channel is full, [Channel.Pop] while it
// is empty, optionally bounded by a timeout ([ErrTimeout]). Waiters on each
// side are served strictly in arrival order. A capacity of zero gives a
// rendezvous channel: a push completes only once a consumer is waiting.
//
// Wakeups are deferred: a push or pop that frees a waiter schedules exactly
// one notification on the loop's next iteration, so the current coroutine
// keeps running and no more waiters are woken than can make progress.
//
// [Channel.Close] wakes every waiter. Pushes then fail with [ErrClosed];
// pops drain the remaining values before failing.
// [Channel.TryPush] and [Channel.TryPop] never suspend and return
// [ErrWouldBlock] instead.
//
// # Errors and Panics
//
// Coroutine errors are wrapped in [*CoroutineError] and joined by
// [Runtime.Run]. Use [IsCoroutineError], [CoroutineOf], [CauseOf] and
// [AllCoroutineErrors] to inspect them. A panic is captured as a
// [*PanicError] and re-raised from Run, or returned as an error with
// [WithPanicAsError]. When every remaining coroutine is suspended and
// nothing can wake them, Run returns [ErrDeadlock].
//
// # Outside Goroutines
//
// [Runtime.Submit] and [Runtime.Go] are safe from any goroutine: they queue
// work on the loop and wake it through the wakeup transport (eventfd on
// Linux, a self-pipe on other Unix systems). [Runtime.Hold] keeps Run alive
// while such a goroutine may still submit. Package chanx builds bridges
// from Go channels on top of these.
//
// # Helpers
//
//   - [Semaphore]: coroutine-level counting semaphore.
//   - [Pool]: fixed set of worker coroutines fed through a channel.
//   - [SpawnResult]: spawn a coroutine producing a typed [Result].
//   - [Sleep] and [Yield]: suspend on a timer or until the next iteration.
//
// # Observability
//
// Logging goes through logrus ([WithLogger], [WithLogLevel]); each entry
// carries the runtime ID. [WithMetrics] registers Prometheus collectors for
// channel operations, notifications, waiters, loop activity and live
// coroutines. Hooks [WithOnStart] and [WithOnDone] observe coroutine
// lifecycles, and [Runtime.Stats] and [Channel.Stats] return snapshots.
//
// # Configuration
//
// [LoadConfig] reads the runtime options from a TOML file; see [Config].
package corochan
