package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "moderation"

var (
	TaskEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_enqueued_total",
			Help:      "Total number of moderation tasks enqueued.",
		},
	)

	TaskCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completed_total",
			Help:      "Total number of tasks that reached a terminal state, by status.",
		},
		[]string{"status"},
	)

	TaskRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retried_total",
			Help:      "Total number of retry republications scheduled by the worker.",
		},
	)

	TaskDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_dead_lettered_total",
			Help:      "Total number of messages routed to the dead-letter stream.",
		},
	)

	TaskProcessingLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_processing_latency_seconds",
			Help:      "Latency from task creation to terminal ledger update (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by key family and outcome (hit, miss, error).",
		},
		[]string{"family", "outcome"},
	)

	BusPublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_failures_total",
			Help:      "Failed stream publications by destination (primary, dlq).",
		},
		[]string{"destination"},
	)
)

func init() {
	prometheus.MustRegister(
		TaskEnqueuedTotal,
		TaskCompletedTotal,
		TaskRetriedTotal,
		TaskDeadLetteredTotal,
		TaskProcessingLatencySeconds,
		CacheRequestsTotal,
		BusPublishFailuresTotal,
	)
}
