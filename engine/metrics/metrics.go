// Package metrics exposes Prometheus instrumentation for a submitter run:
// in-flight points, queue depth, and per-point latency/outcome.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wraps the Prometheus collectors a Submitter updates during
// dispatch. The zero value is not usable; construct with New.
type Recorder struct {
	inflight   prometheus.Gauge
	queueDepth prometheus.Gauge
	pointLat   *prometheus.HistogramVec
	outcomes   *prometheus.CounterVec
}

// New registers the collectors against registry. Pass prometheus.DefaultRegisterer
// for the global registry, or a fresh prometheus.NewRegistry() for isolation
// (tests, multiple engines in one process).
func New(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)
	return &Recorder{
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipegraph",
			Name:      "inflight_points",
			Help:      "Number of state points currently dispatched to the execution plugin",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipegraph",
			Name:      "ready_queue_depth",
			Help:      "Number of state points ready to dispatch but not yet admitted",
		}),
		pointLat: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipegraph",
			Name:      "point_latency_ms",
			Help:      "Point compute duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"run_id", "node", "outcome"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipegraph",
			Name:      "points_total",
			Help:      "Cumulative count of dispatched points by outcome",
		}, []string{"run_id", "node", "outcome"}),
	}
}

func (r *Recorder) SetInflight(n int) { r.inflight.Set(float64(n)) }

func (r *Recorder) SetQueueDepth(n int) { r.queueDepth.Set(float64(n)) }

func (r *Recorder) ObservePoint(runID, node, outcome string, ms float64) {
	r.pointLat.WithLabelValues(runID, node, outcome).Observe(ms)
	r.outcomes.WithLabelValues(runID, node, outcome).Inc()
}
