package corochan

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baxromumarov/corochan/reactor"
)

// metrics holds the Prometheus collectors of one runtime. The vectors are
// shared by every runtime registered on the same registerer and told apart
// by the "runtime" label; the func collectors belong to a single runtime.
type metrics struct {
	reg       prometheus.Registerer
	runtimeID string

	ops      *prometheus.CounterVec
	notified *prometheus.CounterVec
	waiting  *prometheus.GaugeVec

	owned []prometheus.Collector
}

func newMetrics(reg prometheus.Registerer, namespace, runtimeID string) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{reg: reg, runtimeID: runtimeID}

	m.ops = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "ops_total",
		Help:      "Channel operations by outcome.",
	}, []string{"runtime", "channel", "op", "result"}))

	m.notified = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Wakeups scheduled for suspended channel waiters.",
	}, []string{"runtime", "channel", "side"}))

	m.waiting = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "waiters",
		Help:      "Coroutines suspended on a channel.",
	}, []string{"runtime", "channel", "side"}))

	return m
}

// bind registers the collectors that read live runtime state.
func (m *metrics) bind(namespace string, loop *reactor.Loop, s *scheduler) {
	labels := prometheus.Labels{"runtime": m.runtimeID}

	m.own(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "loop",
		Name:        "ticks_total",
		Help:        "Event loop iterations.",
		ConstLabels: labels,
	}, func() float64 { return float64(loop.Stats().Ticks) }))

	m.own(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "loop",
		Name:        "wakeups_total",
		Help:        "Wakeup tokens written to the loop's waker.",
		ConstLabels: labels,
	}, func() float64 { return float64(loop.Stats().Wakeups) }))

	m.own(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "coroutines_active",
		Help:        "Coroutines spawned and not yet finished.",
		ConstLabels: labels,
	}, func() float64 { return float64(s.active.Load()) }))
}

func (m *metrics) own(c prometheus.Collector) {
	if err := m.reg.Register(c); err != nil {
		return
	}
	m.owned = append(m.owned, c)
}

func (m *metrics) channel(name string) *channelMetrics {
	labels := prometheus.Labels{"runtime": m.runtimeID, "channel": name}
	return &channelMetrics{
		opsVec:    m.ops.MustCurryWith(labels),
		notifyVec: m.notified.MustCurryWith(labels),
		waitVec:   m.waiting.MustCurryWith(labels),
	}
}

// Shutdown unregisters the runtime's collectors and drops its label values
// from the shared vectors. Called by the injector on [Runtime.Close].
func (m *metrics) Shutdown() error {
	for _, c := range m.owned {
		m.reg.Unregister(c)
	}
	m.owned = nil

	labels := prometheus.Labels{"runtime": m.runtimeID}
	m.ops.DeletePartialMatch(labels)
	m.notified.DeletePartialMatch(labels)
	m.waiting.DeletePartialMatch(labels)
	return nil
}

// register registers c, or returns the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

type channelMetrics struct {
	opsVec    *prometheus.CounterVec
	notifyVec *prometheus.CounterVec
	waitVec   *prometheus.GaugeVec
}

func (cm *channelMetrics) op(op, result string) {
	cm.opsVec.WithLabelValues(op, result).Inc()
}

func (cm *channelMetrics) notified(s side) {
	cm.notifyVec.WithLabelValues(s.String()).Inc()
}

func (cm *channelMetrics) waiters(w *waitQueue) {
	cm.waitVec.WithLabelValues(w.side.String()).Set(float64(w.Len()))
}
