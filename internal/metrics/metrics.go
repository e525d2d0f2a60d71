// Package metrics exposes prometheus collectors for the reconciliation
// and scoring pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the pipeline emits to. Construct one
// per process and register it on a registry of your choice.
type Metrics struct {
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	FallbacksUsed    prometheus.Counter
	AccountsSkipped  *prometheus.CounterVec
	EntitiesScored   *prometheus.CounterVec
	SuccessRate      prometheus.Histogram
}

// New creates and registers the collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundrank_provider_requests_total",
			Help: "Provider fetches by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundrank_provider_latency_seconds",
			Help:    "Provider fetch latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundrank_cache_requests_total",
			Help: "Record cache lookups by result.",
		}, []string{"result"}),
		FallbacksUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundrank_fallbacks_total",
			Help: "Entities that needed more than the primary provider.",
		}),
		AccountsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundrank_provider_skipped_total",
			Help: "Providers skipped because no account was available.",
		}, []string{"provider"}),
		EntitiesScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundrank_entities_total",
			Help: "Entities processed by outcome.",
		}, []string{"outcome"}),
		SuccessRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundrank_reconcile_success_rate",
			Help:    "Distribution of per-entity reconciliation success rates.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	reg.MustRegister(
		m.ProviderRequests, m.ProviderLatency, m.CacheHits, m.FallbacksUsed,
		m.AccountsSkipped, m.EntitiesScored, m.SuccessRate,
	)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for tests and
// callers that do not scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
