package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduler ticks by job and outcome",
		},
		[]string{"job", "outcome"}, // outcome: ok, error, locked
	)

	jobEntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_entities_total",
			Help: "Scheduled entities by job and final state",
		},
		[]string{"job", "state"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time spent in one job sweep",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
