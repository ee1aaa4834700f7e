package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds an Engine's counters on a private registry. The registry is
// never the global default: an Engine must be constructible many times in
// one process (one per simulated tank), and registering the same collector
// twice on prometheus.DefaultRegisterer panics.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal           prometheus.Counter
	CommandsAccepted     *prometheus.CounterVec
	CommandsRejected     *prometheus.CounterVec
	IntegralClampTotal   *prometheus.CounterVec
	SubscriberDropsTotal prometheus.Counter
}

// NewMetrics builds a Metrics bound to a fresh, private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanksim_engine_ticks_total",
			Help: "Number of simulation ticks executed.",
		}),
		CommandsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksim_engine_commands_accepted_total",
			Help: "Commands accepted onto the queue, by kind.",
		}, []string{"kind"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksim_engine_commands_rejected_total",
			Help: "Commands rejected at submission, by kind.",
		}, []string{"kind"}),
		IntegralClampTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tanksim_engine_integral_clamp_total",
			Help: "Times a controller's integral accumulator hit its magnitude clamp, by controller index.",
		}, []string{"controller"}),
		SubscriberDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanksim_engine_subscriber_drops_total",
			Help: "Snapshots dropped because a subscriber's channel was full.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.CommandsAccepted,
		m.CommandsRejected,
		m.IntegralClampTotal,
		m.SubscriberDropsTotal,
	)
	return m
}

// Registry exposes the private registry for a caller that wants to serve
// /metrics itself (spec.md's non-goals exclude a built-in HTTP exporter).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
