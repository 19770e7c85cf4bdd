// Package metrics exposes Prometheus instrumentation for scoring and
// artifact loading. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aviation_risk"

// Collector holds the service metrics in its own registry
type Collector struct {
	registry *prometheus.Registry

	inferences       *prometheus.CounterVec
	failures         *prometheus.CounterVec
	duration         prometheus.Histogram
	probability      prometheus.Histogram
	artifactLoads    *prometheus.CounterVec
	featureCount     prometheus.Gauge
	artifactLoadedAt prometheus.Gauge
}

// New creates a collector with process and Go runtime metrics registered
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		inferences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_total",
			Help:      "Records scored, by predicted label.",
		}, []string{"label"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Scoring requests that failed, by error kind.",
		}, []string{"kind"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent scoring one record.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		probability: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "incident_probability",
			Help:      "Distribution of reported incident probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		artifactLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_loads_total",
			Help:      "Artifact load attempts, by outcome.",
		}, []string{"outcome"}),
		featureCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_features",
			Help:      "Transformed feature count of the loaded artifact.",
		}),
		artifactLoadedAt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_loaded_timestamp_seconds",
			Help:      "Unix time the current artifact was loaded.",
		}),
	}
}

// ObserveInference records a successful scoring
func (c *Collector) ObserveInference(label string, probability float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.inferences.WithLabelValues(label).Inc()
	c.probability.Observe(probability)
	c.duration.Observe(elapsed.Seconds())
}

// ObserveFailure records a failed scoring
func (c *Collector) ObserveFailure(kind string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(kind).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// ObserveArtifactLoad records a load or reload attempt
func (c *Collector) ObserveArtifactLoad(features int, at time.Time, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.artifactLoads.WithLabelValues("error").Inc()
		return
	}
	c.artifactLoads.WithLabelValues("ok").Inc()
	c.featureCount.Set(float64(features))
	c.artifactLoadedAt.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
