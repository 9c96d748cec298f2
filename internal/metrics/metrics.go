// Package metrics exposes Prometheus instrumentation for the timeline
// store, the reconstruction engine, and playback.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors registered for one application instance.
type Metrics struct {
	// AppendCounter counts write-path operations.
	// Labels: record (event|checkpoint|diff|bookmark), status (ok|rejected|error)
	AppendCounter *prometheus.CounterVec

	// ReconstructionDuration measures ContentAt latency in seconds.
	ReconstructionDuration prometheus.Histogram

	// ReconstructionCounter counts reconstructions by outcome.
	// Labels: status (ok|none|failed)
	ReconstructionCounter *prometheus.CounterVec

	// ActivePlaybacks gauges concurrently running playback schedulers.
	ActivePlaybacks prometheus.Gauge

	// EmittedEvents counts events pushed to playback subscribers.
	EmittedEvents prometheus.Counter

	// StoreBytes gauges the open session's approximate byte usage.
	StoreBytes prometheus.Gauge
}

// New creates the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AppendCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetape_appends_total",
			Help: "Write-path operations by record type and status.",
		}, []string{"record", "status"}),
		ReconstructionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codetape_reconstruction_seconds",
			Help:    "Latency of content reconstruction.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		ReconstructionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetape_reconstructions_total",
			Help: "Content reconstructions by outcome.",
		}, []string{"status"}),
		ActivePlaybacks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codetape_active_playbacks",
			Help: "Playback schedulers currently running.",
		}),
		EmittedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetape_playback_events_emitted_total",
			Help: "Events delivered to playback subscribers.",
		}),
		StoreBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codetape_session_bytes",
			Help: "Approximate bytes stored for the open session.",
		}),
	}
	reg.MustRegister(
		m.AppendCounter,
		m.ReconstructionDuration,
		m.ReconstructionCounter,
		m.ActivePlaybacks,
		m.EmittedEvents,
		m.StoreBytes,
	)
	return m
}
