// Package metrics holds the Prometheus instrumentation for the relay daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector so the daemon can own its own registry
// and tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	FramesDelivered       prometheus.Counter
	PlaceholdersDelivered prometheus.Counter
	InvalidHeaderReads    prometheus.Counter
	ProducerStarts        prometheus.Counter
	ProducerCrashes       prometheus.Counter
	ProducerRestarts      prometheus.Counter
	ProducerState         *prometheus.GaugeVec
	StreamActive          prometheus.Gauge
}

// New creates a metrics bundle backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_frames_delivered_total",
			Help: "Frames delivered to the downstream sink from the shared region",
		}),
		PlaceholdersDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_placeholder_frames_total",
			Help: "Synthesized placeholder frames delivered while no source frame was available",
		}),
		InvalidHeaderReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_invalid_header_reads_total",
			Help: "Reads rejected because the shared region header was stale or corrupt",
		}),
		ProducerStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_producer_starts_total",
			Help: "Producer process launches, including automatic restarts",
		}),
		ProducerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_producer_crashes_total",
			Help: "Producer exits classified as crashes",
		}),
		ProducerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vcamd_producer_restarts_total",
			Help: "Automatic restarts scheduled by the crash-window policy",
		}),
		ProducerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vcamd_producer_state",
			Help: "Producer lifecycle state (1 for the current state, 0 otherwise)",
		}, []string{"state"}),
		StreamActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vcamd_stream_active",
			Help: "Whether the frame scheduler is currently delivering",
		}),
	}

	m.registry.MustRegister(
		m.FramesDelivered,
		m.PlaceholdersDelivered,
		m.InvalidHeaderReads,
		m.ProducerStarts,
		m.ProducerCrashes,
		m.ProducerRestarts,
		m.ProducerState,
		m.StreamActive,
		version.NewCollector("vcamd"),
	)

	return m
}

// SetProducerState flips the state gauge so exactly one label is 1.
func (m *Metrics) SetProducerState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.ProducerState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
