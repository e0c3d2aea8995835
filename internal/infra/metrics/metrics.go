// Package metrics groups the Prometheus instruments exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveReaders  prometheus.Gauge
	PlaybackEvents *prometheus.CounterVec
	TransportCalls *prometheus.CounterVec
	WSSubscribers  prometheus.Gauge
	WordsPerMinute prometheus.Histogram
	registry       *prometheus.Registry
}

// New registers the instruments on a fresh registry that also carries the
// Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveReaders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_readers",
			Help:      "Number of live reader engines.",
		}),
		PlaybackEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_events_total",
			Help:      "Playback events by type.",
		}, []string{"event"}),
		TransportCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_calls_total",
			Help:      "Transport control calls by operation and result.",
		}, []string{"op", "result"}),
		WSSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscribers",
			Help:      "Number of connected websocket snapshot streams.",
		}),
		WordsPerMinute: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reader_speed_wpm",
			Help:      "Configured reading speed of created readers.",
			Buckets:   []float64{100, 200, 250, 300, 400, 500, 700, 1000},
		}),
	}
}

// ObserveTransport counts a transport call.
func (m *Metrics) ObserveTransport(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TransportCalls.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
