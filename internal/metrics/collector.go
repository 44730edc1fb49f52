// Package metrics provides internal Prometheus instrumentation for the
// pipeline engine. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the engine's Prometheus metrics. All Record
// methods are safe to call on a nil receiver, so instrumentation stays
// optional for library callers.
type Collector struct {
	jobsSubmitted   *prometheus.CounterVec
	jobsCompleted   *prometheus.CounterVec
	candidateFailed *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	uploadCacheHits prometheus.Counter
	uploadCacheMiss prometheus.Counter
	pipelineRuns    *prometheus.CounterVec
}

// NewCollector registers the engine metrics under the given namespace on
// the default registerer.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWith registers the engine metrics on a caller-supplied
// registerer. Tests use this with a fresh registry.
func NewCollectorWith(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		jobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submitted_total",
				Help:      "Remote inference jobs submitted, by provider",
			},
			[]string{"provider"},
		),
		jobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Terminal job results observed, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		candidateFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_candidates_failed_total",
				Help:      "Candidate models skipped by the fallback selector",
			},
			[]string{"provider", "model"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of each pipeline stage",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"stage"},
		),
		uploadCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_cache_hits_total",
			Help:      "Source image uploads answered from cache",
		}),
		uploadCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_cache_misses_total",
			Help:      "Source image uploads that went to the provider",
		}),
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Pipeline runs by terminal status",
			},
			[]string{"status"},
		),
	}
}

// RecordJobSubmitted counts one accepted submission.
func (c *Collector) RecordJobSubmitted(provider string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(provider).Inc()
}

// RecordJobCompleted counts one terminal job result.
func (c *Collector) RecordJobCompleted(provider, outcome string) {
	if c == nil {
		return
	}
	c.jobsCompleted.WithLabelValues(provider, outcome).Inc()
}

// RecordCandidateFailed counts one candidate skipped during fallback.
func (c *Collector) RecordCandidateFailed(provider, model string) {
	if c == nil {
		return
	}
	c.candidateFailed.WithLabelValues(provider, model).Inc()
}

// RecordStageDuration observes one stage's wall-clock time.
func (c *Collector) RecordStageDuration(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordUploadCache counts an upload cache lookup.
func (c *Collector) RecordUploadCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.uploadCacheHits.Inc()
	} else {
		c.uploadCacheMiss.Inc()
	}
}

// RecordPipelineRun counts one finished run by terminal status.
func (c *Collector) RecordPipelineRun(status string) {
	if c == nil {
		return
	}
	c.pipelineRuns.WithLabelValues(status).Inc()
}
