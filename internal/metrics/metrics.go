// Package metrics exposes Prometheus collectors for the job server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostfire",
		Name:      "jobs_processed_total",
		Help:      "Background job executions by queue and resulting status.",
	}, []string{"queue", "status"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostfire",
		Name:      "job_duration_seconds",
		Help:      "Background job execution time.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"queue"})

	recurringTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostfire",
		Name:      "recurring_triggered_total",
		Help:      "Recurring job occurrences enqueued by this process.",
	})

	workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hostfire",
		Name:      "workers_busy",
		Help:      "Workers currently executing a job.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		jobsProcessed,
		jobDuration,
		recurringTriggered,
		workersBusy,
	)
}

// JobProcessed records one finished execution.
func JobProcessed(queue, status string, took time.Duration) {
	jobsProcessed.WithLabelValues(queue, status).Inc()
	jobDuration.WithLabelValues(queue).Observe(took.Seconds())
}

func RecurringTriggered() {
	recurringTriggered.Inc()
}

func WorkerStarted() {
	workersBusy.Inc()
}

func WorkerFinished() {
	workersBusy.Dec()
}

// Handler serves the hostfire registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
