// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pump_monitor"

// Metrics holds every collector of the process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	readErrors    *prometheus.CounterVec
	retries       prometheus.Counter
	reconnects    prometheus.Counter
	cycleDuration prometheus.Histogram
	linkUp        prometheus.Gauge
	events        *prometheus.CounterVec
	tripped       prometheus.Gauge
	sinkFailures  *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	feedDropped   *prometheus.CounterVec
	subscribers   prometheus.Gauge
}

// New builds the collectors on a private registry with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Acquisition cycles by result (ok, error).",
		}, []string{"result"}),

		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed controller operations by classification.",
		}, []string{"kind"}),

		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_retries_total",
			Help:      "Reads retried in place after a busy response.",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Session reopen attempts after a lost link.",
		}),

		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one acquisition including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_connected",
			Help:      "1 when the last cycle read live data from the controller.",
		}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_events_total",
			Help:      "Trip transition events by kind.",
		}, []string{"kind"}),

		tripped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pumps_tripped",
			Help:      "Pumps currently carried as tripped.",
		}),

		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed deliveries to downstream sinks.",
		}, []string{"sink"}),

		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      "Successful deliveries to downstream sinks.",
		}, []string{"sink"}),

		feedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Snapshots replaced before a slow subscriber read them.",
		}, []string{"subscriber"}),

		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_subscribers",
			Help:      "Live dashboard subscribers.",
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.readErrors,
		m.retries,
		m.reconnects,
		m.cycleDuration,
		m.linkUp,
		m.events,
		m.tripped,
		m.sinkFailures,
		m.deliveries,
		m.feedDropped,
		m.subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Cycle(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	if ok {
		m.linkUp.Set(1)
	} else {
		m.linkUp.Set(0)
	}
}

func (m *Metrics) ReadError(kind string) {
	if m == nil {
		return
	}
	m.readErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) SinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// Tripped sets the number of pumps currently in trip.
func (m *Metrics) Tripped(n int) {
	if m == nil {
		return
	}
	m.tripped.Set(float64(n))
}

func (m *Metrics) SinkDelivery(sink string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(sink).Inc()
}

func (m *Metrics) FeedDropped(subscriber string) {
	if m == nil {
		return
	}
	m.feedDropped.WithLabelValues(subscriber).Inc()
}
