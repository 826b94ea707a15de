package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ruleConfigFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_rule_config_faults_total",
		Help: "Rules skipped during evaluation because their configuration is malformed",
	}, []string{"kind"})

	rulesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_rules_applied_total",
		Help: "Rule applications that produced an effect, by kind",
	}, []string{"kind"})

	usageCapped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_usage_capped_total",
		Help: "Matching rule applications that received fewer units than requested",
	}, []string{"kind"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promotion_resolve_duration_seconds",
		Help:    "Time spent resolving promotions for a cart",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"outcome"})
)
