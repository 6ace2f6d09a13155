package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "propindex"
	metricsSubsystem = "index"
)

var (
	// QueueDepth is the number of mutations waiting in the queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth",
			Help:      "Number of mutations waiting to be applied",
		},
	)

	// MutationsEnqueued counts mutations accepted by the queue.
	// Labels: action (create, delete, replace)
	MutationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "mutations_enqueued_total",
			Help:      "Total number of mutations enqueued",
		},
		[]string{"action"},
	)

	// MutationsApplied counts mutations applied to the index writer.
	// Labels: action (create, delete, replace)
	MutationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "mutations_applied_total",
			Help:      "Total number of mutations applied to the index writer",
		},
		[]string{"action"},
	)

	// MutationsDropped counts mutations that were given up on.
	// Labels: reason (interrupted, max_attempts, empty)
	MutationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "mutations_dropped_total",
			Help:      "Total number of mutations dropped without being committed",
		},
		[]string{"reason"},
	)

	// WorkerRuns counts worker runs by outcome.
	// Labels: result (success, error, cancelled)
	WorkerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "worker_runs_total",
			Help:      "Total number of index worker runs",
		},
		[]string{"result"},
	)

	// CommitDuration tracks how long index commits take.
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "commit_duration_seconds",
			Help:      "Duration of index commits in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Drop reasons.
const (
	dropInterrupted = "interrupted"
	dropMaxAttempts = "max_attempts"
	dropEmpty       = "empty"
)

// Run results.
const (
	runSuccess   = "success"
	runError     = "error"
	runCancelled = "cancelled"
)
