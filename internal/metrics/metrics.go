// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_sweep_runs_total",
		Help: "Expiry sweep runs by result",
	}, []string{"result"})

	SweepTransitioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasktracker_sweep_transitioned_total",
		Help: "Tasks moved to task_miss by the expiry sweep",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tasktracker_sweep_duration_seconds",
		Help:    "Expiry sweep duration",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	MissCountLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_miss_count_lookups_total",
		Help: "Miss-count lookups by cache result",
	}, []string{"cache"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_cache_errors_total",
		Help: "Swallowed cache backend errors by operation",
	}, []string{"op"})

	ParamReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_param_reloads_total",
		Help: "Parameter snapshot reloads by trigger",
	}, []string{"trigger"})

	ParamInvalidRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasktracker_param_invalid_rows_total",
		Help: "Parameter rows skipped because the value did not decode",
	})

	Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_experiment_assignments_total",
		Help: "New experiment assignments by group",
	}, []string{"group"})

	StrategiesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_strategies_applied_total",
		Help: "Strategies applied to missed tasks",
	}, []string{"strategy"})

	GuideExposures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasktracker_guide_exposures_total",
		Help: "Soft-limit guide exposures",
	})

	LimitBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasktracker_limit_blocks_total",
		Help: "Task creations rejected by the hard limit",
	})

	Interventions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasktracker_interventions_total",
		Help: "Focus interventions fired for treatment sessions",
	})
)
