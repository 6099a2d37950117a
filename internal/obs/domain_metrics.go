package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuotesTotal counts quote computations by instrument outcome.
	PricingQuotesTotal *prometheus.CounterVec
	// AllocationRunsTotal counts allocation runs by outcome (complete, shortfall, invalid).
	AllocationRunsTotal *prometheus.CounterVec
	// AllocationShortfallUnits accumulates units that could not be allocated.
	AllocationShortfallUnits prometheus.Counter
	// AllocationCommitTotal counts plan commits by outcome.
	AllocationCommitTotal *prometheus.CounterVec
	// AllocationCommitLatency records commit latency in milliseconds, lock wait included.
	AllocationCommitLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of pricing quotes by instrument outcome.",
		}, []string{"instrument"})
		AllocationRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_runs_total",
			Help:      "Count of lot allocation runs by outcome.",
		}, []string{"outcome"})
		AllocationShortfallUnits = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_shortfall_units_total",
			Help:      "Units requested but not covered by available stock.",
		})
		AllocationCommitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_commit_total",
			Help:      "Count of allocation plan commits by outcome.",
		}, []string{"outcome"})
		AllocationCommitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_commit_duration_ms",
			Help:      "Latency of allocation commits in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})

		mustRegisterCollector(reg, PricingQuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingQuotesTotal = v
			}
		})
		mustRegisterCollector(reg, AllocationRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AllocationRunsTotal = v
			}
		})
		mustRegisterCollector(reg, AllocationShortfallUnits, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AllocationShortfallUnits = v
			}
		})
		mustRegisterCollector(reg, AllocationCommitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AllocationCommitTotal = v
			}
		})
		mustRegisterCollector(reg, AllocationCommitLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				AllocationCommitLatency = v
			}
		})
	})
}

// RecordQuote increments the quote counter. No-op until metrics are registered.
func RecordQuote(instrument string) {
	if PricingQuotesTotal == nil {
		return
	}
	PricingQuotesTotal.WithLabelValues(instrument).Inc()
}

// RecordAllocation tracks the outcome of an allocation run.
func RecordAllocation(outcome string, shortfall int) {
	if AllocationRunsTotal != nil {
		AllocationRunsTotal.WithLabelValues(outcome).Inc()
	}
	if AllocationShortfallUnits != nil && shortfall > 0 {
		AllocationShortfallUnits.Add(float64(shortfall))
	}
}

// RecordCommit tracks a commit outcome and how long it took.
func RecordCommit(outcome string, elapsed time.Duration) {
	if AllocationCommitTotal != nil {
		AllocationCommitTotal.WithLabelValues(outcome).Inc()
	}
	if AllocationCommitLatency != nil {
		AllocationCommitLatency.Observe(DurationMillis(elapsed))
	}
}
