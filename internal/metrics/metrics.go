// ABOUTME: Prometheus collectors for turns, session counts, and stream connections
// ABOUTME: Implements dispatch.Observer and serves its own registry over HTTP

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nanobot"

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	turns             *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	turnWait          prometheus.Histogram
	streamConnections prometheus.Gauge
}

// New creates the collectors. sessions is sampled on every scrape for the
// live session gauge; nil skips that gauge.
func New(sessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns processed, by channel and outcome",
		}, []string{"channel", "outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time spent running a turn after acquiring the session",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"channel"}),
		turnWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_wait_seconds",
			Help:      "Time a turn waited for the previous turn of its session",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
		streamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections",
			Help:      "Open duplex connections",
		}),
	}

	if sessions != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Sessions currently held by the registry",
		}, func() float64 { return float64(sessions()) })
	}
	return m
}

// TurnWaited implements dispatch.Observer.
func (m *Metrics) TurnWaited(_ string, wait time.Duration) {
	m.turnWait.Observe(wait.Seconds())
}

// TurnFinished implements dispatch.Observer.
func (m *Metrics) TurnFinished(channel, outcome string, elapsed time.Duration) {
	m.turns.WithLabelValues(channel, outcome).Inc()
	m.turnDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

// StreamOpened records a new duplex connection.
func (m *Metrics) StreamOpened() { m.streamConnections.Inc() }

// StreamClosed records a closed duplex connection.
func (m *Metrics) StreamClosed() { m.streamConnections.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
