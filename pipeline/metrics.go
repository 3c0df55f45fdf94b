package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus instrumentation for a Pipeline's frame
// queue. It is optional: a Pipeline built without one runs identically,
// just without observability. Wiring metrics never touches the DSP
// engine itself (dsp/phasevoc stays free of any telemetry dependency).
type Metrics struct {
	queueDepth prometheus.Gauge
	dropped    prometheus.Counter
	held       prometheus.Counter
}

// NewMetrics creates a Metrics instance and registers its collectors
// against reg. Passing prometheus.NewRegistry() keeps it isolated from
// the default global registry, which is convenient for tests and for
// embedding multiple pipelines in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "phasovox",
			Subsystem: "pipeline",
			Name:      "frame_queue_depth",
			Help:      "Current number of spectral frames buffered between analysis and synthesis.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phasovox",
			Subsystem: "pipeline",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped at the producer side once the queue reached its high-water mark.",
		}),
		held: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phasovox",
			Subsystem: "pipeline",
			Name:      "frames_held_total",
			Help:      "Playback cycles that emitted silence instead of synthesising because the queue exceeded its low-water mark.",
		}),
	}

	reg.MustRegister(m.queueDepth, m.dropped, m.held)

	return m
}

func (m *Metrics) setQueueDepth(n int) { m.queueDepth.Set(float64(n)) }
func (m *Metrics) recordDropped()      { m.dropped.Inc() }
func (m *Metrics) recordHeld()         { m.held.Inc() }
