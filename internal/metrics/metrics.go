// Package metrics exposes operational Prometheus metrics for the session,
// the acquisition pipeline, the history store and the command channel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/si3lab/lidarlink/internal/acquisition"
	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/internal/telemetry"
)

const namespace = "lidarlink"

// Metrics holds every collector and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	SessionState     prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	LinkLosses       prometheus.Counter

	Batches   *prometheus.CounterVec
	Samples   *prometheus.CounterVec
	BatchSize *prometheus.HistogramVec

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

// New creates a registry with the process and Go runtime collectors plus
// the lidarlink metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SessionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "state",
				Help:      "Session state (0=disconnected, 1=connecting, 2=connected, 3=closing)",
			},
		),

		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Session state transitions by target state",
			},
			[]string{"to"},
		),

		LinkLosses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "link_losses_total",
				Help:      "Connected sessions lost to a failed probe or acquisition error",
			},
		),

		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "acquisition",
				Name:      "batches_total",
				Help:      "Telemetry batches applied, by source",
			},
			[]string{"source"},
		),

		Samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "acquisition",
				Name:      "samples_total",
				Help:      "Attribute samples applied, by source",
			},
			[]string{"source"},
		),

		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "acquisition",
				Name:      "batch_size",
				Help:      "Samples per batch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 200},
			},
			[]string{"source"},
		),

		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "executed_total",
				Help:      "Executed commands by kind and outcome",
			},
			[]string{"kind", "status"},
		),

		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "duration_seconds",
				Help:      "Command execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionState,
		m.StateTransitions,
		m.LinkLosses,
		m.Batches,
		m.Samples,
		m.BatchSize,
		m.Commands,
		m.CommandDuration,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveTransition records a session state change. Register it with
// session.Manager.OnStateChange.
func (m *Metrics) ObserveTransition(t session.Transition) {
	m.SessionState.Set(float64(t.To))
	m.StateTransitions.WithLabelValues(t.To.String()).Inc()
	if t.From == session.StateConnected && t.To == session.StateDisconnected && t.Err != nil {
		m.LinkLosses.Inc()
	}
}

// ObserveCommand records an executed command. Register it with
// session.Manager.OnCommand.
func (m *Metrics) ObserveCommand(cmd session.Command, res session.Result) {
	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	m.Commands.WithLabelValues(string(cmd.Kind), status).Inc()
	m.CommandDuration.WithLabelValues(string(cmd.Kind)).Observe(res.Duration.Seconds())
}

// Consume implements acquisition.Sink.
func (m *Metrics) Consume(batch telemetry.Batch) {
	source := batch.Source
	m.Batches.WithLabelValues(source).Inc()
	m.Samples.WithLabelValues(source).Add(float64(batch.Len()))
	m.BatchSize.WithLabelValues(source).Observe(float64(batch.Len()))
}

// RegisterHistory exposes the history store's size and window.
func (m *Metrics) RegisterHistory(store *history.Store) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "points",
			Help:      "Points currently held across all series",
		}, func() float64 { return float64(store.Stats().Points) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "series",
			Help:      "Attributes with stored history",
		}, func() float64 { return float64(store.Stats().Series) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "retention_seconds",
			Help:      "Current history window in seconds",
		}, func() float64 { return store.Retention().Seconds() }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "pruned_points_total",
			Help:      "Points dropped by retention pruning",
		}, func() float64 { return float64(store.Stats().Pruned) }),
	)
}

// RegisterPoll exposes poll loop counters.
func (m *Metrics) RegisterPoll(poll *acquisition.Poll) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "ticks_total",
			Help:      "Poll ticks run",
		}, func() float64 { return float64(poll.Stats().Ticks) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "failures_total",
			Help:      "Poll ticks whose batched read failed",
		}, func() float64 { return float64(poll.Stats().Failures) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "consecutive_failures",
			Help:      "Failed poll ticks since the last success",
		}, func() float64 { return float64(poll.Stats().ConsecutiveFailures) }),
	)
}

// RegisterPipeline exposes pipeline counters that sinks cannot see.
func (m *Metrics) RegisterPipeline(pipeline *acquisition.Pipeline) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "unknown_samples_total",
			Help:      "Samples naming an attribute outside the schema",
		}, func() float64 { return float64(pipeline.Stats().Unknown) }),

		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "sink_panics_total",
			Help:      "Panics recovered while delivering batches to sinks",
		}, func() float64 { return float64(pipeline.Stats().Panics) }),
	)
}
