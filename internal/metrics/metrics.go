// Package metrics exposes Prometheus metrics for inference jobs and the
// region cache.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service registry and its collectors.
type Metrics struct {
	Inference *InferenceMetrics
	registry  *prometheus.Registry
}

// New creates a registry with the Go runtime, process, and inference
// collectors registered.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}

	inference, err := NewInferenceMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{Inference: inference, registry: registry}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler(logger *slog.Logger) http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// InferenceMetrics tracks job outcomes, stage latency, and cache behavior.
type InferenceMetrics struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	regionCache   *prometheus.CounterVec
}

// NewInferenceMetrics creates the inference collectors and registers them.
func NewInferenceMetrics(registry prometheus.Registerer) (*InferenceMetrics, error) {
	m := &InferenceMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoassign_inference_jobs_total",
				Help: "Inference jobs that reached a terminal state, by status and failure kind.",
			},
			[]string{"status", "kind"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geoassign_inference_job_duration_seconds",
				Help:    "Wall-clock time from job start to its terminal state.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geoassign_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"stage"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geoassign_inference_active_jobs",
				Help: "Inference computations currently running.",
			},
		),
		regionCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoassign_region_cache_requests_total",
				Help: "Region lookups by cache result.",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.jobsTotal, m.jobDuration, m.stageDuration, m.activeJobs, m.regionCache,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register inference metrics: %w", err)
		}
	}
	return m, nil
}

// JobStarted increments the active job gauge.
func (m *InferenceMetrics) JobStarted() {
	m.activeJobs.Inc()
}

// JobFinished records a terminal job. kind is empty for successful jobs.
func (m *InferenceMetrics) JobFinished(status, kind string, d time.Duration) {
	m.activeJobs.Dec()
	if kind == "" {
		kind = "none"
	}
	m.jobsTotal.WithLabelValues(status, kind).Inc()
	m.jobDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveStage records the duration of one pipeline stage.
func (m *InferenceMetrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RegionCache counts a region lookup as a hit or a miss.
func (m *InferenceMetrics) RegionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.regionCache.WithLabelValues(result).Inc()
}
