// Package metrics exposes the counting pipeline as Prometheus metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swdee/go-planktrack/counter"
	"net/http"
	"time"
)

// Pipeline stages timed by StageLatency
const (
	StageRead   = "read"
	StageDetect = "detect"
	StageTrack  = "track"
	StageCount  = "count"
	StageRender = "render"
)

// Metrics holds the collectors of one pipeline
type Metrics struct {
	FramesProcessed prometheus.Counter
	Detections      prometheus.Counter
	UniqueOrganisms prometheus.Gauge
	ActiveTracks    prometheus.Gauge
	UniqueByClass   *prometheus.GaugeVec
	StageLatency    *prometheus.HistogramVec
	SourceErrors    prometheus.Counter
	DetectorErrors  prometheus.Counter
	Resets          prometheus.Counter
	Snapshots       prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors on their own registry
func New() *Metrics {

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_frames_processed_total",
			Help: "Total frames counted",
		}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_detections_total",
			Help: "Total detector observations",
		}),
		UniqueOrganisms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planktrack_unique_organisms",
			Help: "Unique organisms counted since the last reset",
		}),
		ActiveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planktrack_active_tracks",
			Help: "Tracks currently in view",
		}),
		UniqueByClass: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planktrack_unique_organisms_by_class",
			Help: "Unique organisms counted since the last reset per class",
		}, []string{"class"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planktrack_stage_duration_seconds",
			Help:    "Time spent per frame in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"stage"}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_source_errors_total",
			Help: "Frame source read failures",
		}),
		DetectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_detector_errors_total",
			Help: "Frames skipped because detection failed",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_resets_total",
			Help: "Count resets requested",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planktrack_snapshots_total",
			Help: "Snapshots saved",
		}),
	}

	m.registry.MustRegister(
		m.FramesProcessed,
		m.Detections,
		m.UniqueOrganisms,
		m.ActiveTracks,
		m.UniqueByClass,
		m.StageLatency,
		m.SourceErrors,
		m.DetectorErrors,
		m.Resets,
		m.Snapshots,
	)

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStats updates the count gauges from a statistics snapshot
func (m *Metrics) ObserveStats(stats counter.RunStatistics) {

	m.UniqueOrganisms.Set(float64(stats.TotalUnique))
	m.ActiveTracks.Set(float64(stats.TotalActive))

	// classes disappear after a reset
	m.UniqueByClass.Reset()

	for class, n := range stats.UniqueByClass {
		m.UniqueByClass.WithLabelValues(class).Set(float64(n))
	}
}

// ObserveStage records the time a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}
