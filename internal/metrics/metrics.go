// Package metrics exposes Prometheus instrumentation for the query planner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlansTotal counts plan-and-execute runs by outcome ("success"/"failure").
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartquery",
		Name:      "plans_total",
		Help:      "Plan-and-execute runs by outcome.",
	}, []string{"outcome"})

	// StepRetriesTotal counts retry attempts per orchestrated step.
	StepRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartquery",
		Name:      "step_retries_total",
		Help:      "Retry attempts by orchestrator step.",
	}, []string{"step"})

	// ParseFailuresTotal counts intent parses that produced no usable intent.
	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smartquery",
		Name:      "intent_parse_failures_total",
		Help:      "LLM intent parses that failed validation or JSON extraction.",
	})

	// PlanDuration observes end-to-end plan-and-execute latency.
	PlanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartquery",
		Name:      "plan_duration_seconds",
		Help:      "End-to-end plan-and-execute duration.",
		Buckets:   prometheus.DefBuckets,
	})

	// CacheHitsTotal counts orchestrator step-cache hits.
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartquery",
		Name:      "step_cache_hits_total",
		Help:      "Orchestrator result-cache hits by step.",
	}, []string{"step"})
)
