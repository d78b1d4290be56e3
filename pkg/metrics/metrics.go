// Package metrics counts segmentation work on a private Prometheus registry. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voxelseg"

// Frame outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics holds the segmentation collectors.
type Metrics struct {
	registry *prometheus.Registry

	Frames        *prometheus.CounterVec
	Seeds         prometheus.Counter
	Fusions       prometheus.Counter
	Merges        prometheus.Counter
	FrameDuration prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	frames := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of segmented frames",
		},
		[]string{"status"},
	)

	seeds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seeds_total",
			Help:      "Total number of seed components flooded",
		},
	)

	fusions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watershed_fusions_total",
			Help:      "Total number of region fusions during flooding",
		},
	)

	merges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_merges_total",
			Help:      "Total number of region merges and filled holes after flooding",
		},
	)

	frameDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Segmentation time per frame in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	registry.MustRegister(frames, seeds, fusions, merges, frameDuration)

	return &Metrics{
		registry:      registry,
		Frames:        frames,
		Seeds:         seeds,
		Fusions:       fusions,
		Merges:        merges,
		FrameDuration: frameDuration,
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFrame records one segmented frame.
func (m *Metrics) ObserveFrame(seeds, fusions, merges int, d time.Duration) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(StatusOK).Inc()
	m.Seeds.Add(float64(seeds))
	m.Fusions.Add(float64(fusions))
	m.Merges.Add(float64(merges))
	m.FrameDuration.Observe(d.Seconds())
}

// FrameFailed records a frame that could not be segmented.
func (m *Metrics) FrameFailed() {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(StatusFailed).Inc()
}
