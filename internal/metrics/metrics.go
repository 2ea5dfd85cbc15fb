package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the detection pipeline counters. Counters are plain atomics
// bumped on the hot path; Prometheus reads them lazily through GaugeFunc
// collectors on a private registry.
type Metrics struct {
	FramesProcessed  atomic.Uint64
	FramesSkipped    atomic.Uint64
	Escalations      atomic.Uint64
	AnalyzerFailures atomic.Uint64
	LocatorFailures  atomic.Uint64
	IncidentsEmitted atomic.Uint64
	Suppressed       atomic.Uint64
	ActiveSources    atomic.Int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauge := func(name, help string, load func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			load,
		))
	}

	gauge("incident_frames_processed_total", "Total frames run through the pipeline",
		func() float64 { return float64(m.FramesProcessed.Load()) })
	gauge("incident_frames_skipped_total", "Frames skipped by the sampling stride",
		func() float64 { return float64(m.FramesSkipped.Load()) })
	gauge("incident_escalations_total", "Frames escalated to the semantic analyzer",
		func() float64 { return float64(m.Escalations.Load()) })
	gauge("incident_analyzer_failures_total", "Semantic analyzer calls that failed or timed out",
		func() float64 { return float64(m.AnalyzerFailures.Load()) })
	gauge("incident_locator_failures_total", "Object locator calls that failed",
		func() float64 { return float64(m.LocatorFailures.Load()) })
	gauge("incident_events_emitted_total", "Incident events emitted past the cooldown",
		func() float64 { return float64(m.IncidentsEmitted.Load()) })
	gauge("incident_confirmations_suppressed_total", "Confirmed incidents suppressed by the cooldown",
		func() float64 { return float64(m.Suppressed.Load()) })
	gauge("incident_active_sources", "Video sources with live pipeline state",
		func() float64 { return float64(m.ActiveSources.Load()) })
}

// Handler serves the registry for Prometheus scrapes.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
