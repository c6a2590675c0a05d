package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delegated-login Prometheus metrics. Defined in a standalone package to
// avoid import cycles between the dispatcher and HTTP packages.

var (
	DispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_dispatched_total",
		Help: "Provider requests dispatched, by provider and phase",
	}, []string{"provider", "phase"})

	ResolutionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_resolution_outcomes_total",
		Help: "Terminal resolution outcomes, by provider and outcome",
	}, []string{"provider", "outcome"})

	FailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Failures surfaced through the failure channel, by provider and kind",
	}, []string{"provider", "kind"})

	ResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_resolution_duration_ms",
		Help:    "Callback resolution latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Register registers the delegated-login metrics on the given registry (or
// default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		DispatchedTotal,
		ResolutionOutcomes,
		FailuresTotal,
		ResolutionDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
