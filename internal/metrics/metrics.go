// Package metrics exposes Prometheus counters for the worker pool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the worker metrics on a private registry, exposed via
// the ops server's /metrics endpoint.
type Collector struct {
	registry *prometheus.Registry

	jobsProcessed  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	activeWorkers  prometheus.Gauge
	stuckRecovered prometheus.Counter
	dequeueErrors  prometheus.Counter
}

// NewCollector creates and registers the worker metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_processed_total",
			Help: "Jobs processed, by job type and terminal status.",
		}, []string{"type", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Wall-clock job processing duration.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"type"}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_active_workers",
			Help: "Workers currently running a job.",
		}),
		stuckRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_stuck_jobs_recovered_total",
			Help: "Orphaned PROCESSING jobs failed by the sweeper.",
		}),
		dequeueErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_dequeue_errors_total",
			Help: "Errors while pulling job IDs off the queue.",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordJob records one finished job run.
func (c *Collector) RecordJob(jobType, status string, durationSec float64) {
	c.jobsProcessed.WithLabelValues(jobType, status).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(durationSec)
}

// WorkerStarted marks a worker as busy.
func (c *Collector) WorkerStarted() {
	c.activeWorkers.Inc()
}

// WorkerStopped marks a worker as idle again.
func (c *Collector) WorkerStopped() {
	c.activeWorkers.Dec()
}

// RecordStuckRecovered records jobs failed by the stuck-job sweeper.
func (c *Collector) RecordStuckRecovered(n int) {
	c.stuckRecovered.Add(float64(n))
}

// RecordDequeueError records a queue pull failure.
func (c *Collector) RecordDequeueError() {
	c.dequeueErrors.Inc()
}
