/*
metrics.go - Prometheus instrumentation for the distribution engine

EXPOSED SERIES:
  ration_distributions_total{outcome}   Outcomes: success, insufficient,
                                        conflict, error
  ration_distribution_seconds           End-to-end Distribute latency
  ration_balance_conflicts_total        Optimistic-lock retries observed
  ration_ledger_compensations_total     Decrements credited back after a
                                        failed chain append
  ration_chain_height                   Index of the current chain head
*/
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	Distributions *prometheus.CounterVec
	Duration      prometheus.Histogram
	Conflicts     prometheus.Counter
	Compensations prometheus.Counter
	ChainHeight   prometheus.Gauge
}

// NewMetrics registers the engine's instruments on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Distributions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ration_distributions_total",
			Help: "Distribution attempts by outcome.",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ration_distribution_seconds",
			Help:    "End-to-end latency of the distribute operation.",
			Buckets: prometheus.DefBuckets,
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ration_balance_conflicts_total",
			Help: "Optimistic concurrency conflicts observed on balance decrements.",
		}),
		Compensations: factory.NewCounter(prometheus.CounterOpts{
			Name: "ration_ledger_compensations_total",
			Help: "Balance decrements credited back after a failed ledger append.",
		}),
		ChainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ration_chain_height",
			Help: "Block index of the current chain head.",
		}),
	}
}

const (
	outcomeSuccess      = "success"
	outcomeInsufficient = "insufficient"
	outcomeConflict     = "conflict"
	outcomeError        = "error"
)
