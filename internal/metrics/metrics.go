// Package metrics exports Prometheus counters/gauges for the pipeline:
// purely observational instrumentation, grounded on the metrics
// registration patterns in madpsy-ka9q_ubersdr's decoder_metrics.go.
// It never gates any data-path decision.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	FramesProcessed prometheus.Counter
	SamplesDropped  prometheus.Counter
	Confidence      prometheus.Gauge
	BufferLevel     prometheus.Gauge
}

// New registers and returns a fresh set of collectors against reg.
// Pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer for a process-wide /metrics endpoint.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "micarray",
			Name:      "frames_processed_total",
			Help:      "Total number of frame-blocks processed by the pipeline.",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "micarray",
			Name:      "capture_samples_dropped_total",
			Help:      "Total number of samples dropped on capture-buffer overrun.",
		}),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "micarray",
			Name:      "localization_confidence",
			Help:      "Most recent localization confidence in [0, 1].",
		}),
		BufferLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "micarray",
			Name:      "capture_buffer_level",
			Help:      "Current number of samples available in the capture ring buffer.",
		}),
	}

	reg.MustRegister(m.FramesProcessed, m.SamplesDropped, m.Confidence, m.BufferLevel)
	return m
}
