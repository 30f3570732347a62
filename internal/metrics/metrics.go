// Package metrics counts invocations and their durations with Prometheus
// collectors and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "regcascade"

// Recorder holds the invocation collectors on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Registration invocations by dialect and outcome.",
		}, []string{"dialect", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall time of engine runs that were not skipped.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"dialect"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invocations_in_flight",
			Help:      "Engine processes currently running.",
		}),
	}
	r.registry.MustRegister(r.invocations, r.duration, r.inFlight)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Started marks an engine process as running and returns the matching done func.
func (r *Recorder) Started() func() {
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// Observe counts one outcome. Durations are only recorded for runs.
func (r *Recorder) Observe(dialect, status string, elapsed time.Duration, ran bool) {
	r.invocations.WithLabelValues(dialect, status).Inc()
	if ran {
		r.duration.WithLabelValues(dialect).Observe(elapsed.Seconds())
	}
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
