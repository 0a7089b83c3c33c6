package corochan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/baxromumarov/corochan/reactor"
)

// CoroutineInfo identifies a coroutine. It is passed to hooks registered via
// [WithOnStart] and [WithOnDone] and carried by [*CoroutineError].
type CoroutineInfo struct {
	ID   uint64
	Name string
}

type config struct {
	name        string
	logger      logrus.FieldLogger
	logLevel    logrus.Level
	registerer  prometheus.Registerer
	namespace   string
	waker       string
	deferBudget int
	panicAsErr  bool
	onStart     func(CoroutineInfo)
	onDone      func(CoroutineInfo, error, time.Duration)
}

// Option configures a [Runtime].
type Option func(*config)

func defaultConfig() config {
	return config{
		logLevel:  logrus.InfoLevel,
		namespace: "corochan",
		waker:     reactor.WakerAuto,
	}
}

// WithName sets a human-readable runtime name, added to every log entry.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger. The runtime adds its own fields to it.
// By default a new logrus logger writing to stderr is used.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = log
	}
}

// WithLogLevel sets the level of the default logger. It has no effect when
// [WithLogger] is used.
func WithLogLevel(level logrus.Level) Option {
	return func(c *config) {
		c.logLevel = level
	}
}

// WithMetrics registers the runtime's Prometheus collectors with reg.
// Without it, metrics are recorded but never exported.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithMetricsNamespace overrides the metric namespace (default "corochan").
func WithMetricsNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithWaker selects the loop's wakeup transport: "auto" (default),
// "eventfd", "pipe" or "chan". See [reactor.NewWaker].
func WithWaker(kind string) Option {
	return func(c *config) {
		c.waker = kind
	}
}

// WithDeferBudget caps how many deferred callbacks (notifications, spawns,
// yields) the loop runs per iteration. Zero, the default, runs the whole
// batch. WithDeferBudget panics if n is negative.
func WithDeferBudget(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("corochan: defer budget must be non-negative")
		}
		c.deferBudget = n
	}
}

// WithPanicAsError converts coroutine panics into [*PanicError] values
// returned from [Runtime.Run], instead of re-raising them.
func WithPanicAsError() Option {
	return func(c *config) {
		c.panicAsErr = true
	}
}

// WithOnStart registers a hook invoked when each coroutine first runs.
// The hook runs inside the coroutine, before its function.
func WithOnStart(fn func(CoroutineInfo)) Option {
	return func(c *config) {
		c.onStart = fn
	}
}

// WithOnDone registers a hook invoked when each coroutine returns.
// The hook receives the coroutine's error (nil on success) and the
// wall-clock time since it first ran, suspensions included.
func WithOnDone(fn func(CoroutineInfo, error, time.Duration)) Option {
	return func(c *config) {
		c.onDone = fn
	}
}
