package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	presaleMetricsOnce sync.Once
	presaleRegistry    *PresaleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tiersale",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// PresaleMetrics tracks ledger activity of the presale.
type PresaleMetrics struct {
	transactions *prometheus.CounterVec
	conflicts    prometheus.Counter
	commit       prometheus.Histogram
	unitsSold    prometheus.Gauge
	currentTier  prometheus.Gauge
	collected    *prometheus.CounterVec
}

// Presale returns the singleton presale metrics registry.
func Presale() *PresaleMetrics {
	presaleMetricsOnce.Do(func() {
		presaleRegistry = &PresaleMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "transactions_total",
				Help:      "Submitted transactions segmented by type and result code.",
			}, []string{"type", "result"}),
			conflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "commit_conflicts_total",
				Help:      "Transactions rejected because a concurrent commit changed their inputs.",
			}),
			commit: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "apply_duration_seconds",
				Help:      "Time spent validating, executing and committing a transaction.",
				Buckets:   prometheus.DefBuckets,
			}),
			unitsSold: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "units_sold",
				Help:      "Cumulative units sold.",
			}),
			currentTier: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "current_tier",
				Help:      "Tier whose price applies to the next purchase.",
			}),
			collected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tiersale",
				Subsystem: "presale",
				Name:      "payment_collected_total",
				Help:      "Payment units transferred to the treasury segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			presaleRegistry.transactions,
			presaleRegistry.conflicts,
			presaleRegistry.commit,
			presaleRegistry.unitsSold,
			presaleRegistry.currentTier,
			presaleRegistry.collected,
		)
	})
	return presaleRegistry
}

// RecordTransaction counts a processed transaction. An empty result means the
// transaction committed.
func (m *PresaleMetrics) RecordTransaction(txType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.transactions.WithLabelValues(txType, result).Inc()
	m.commit.Observe(duration.Seconds())
}

// RecordConflict counts a commit rejected with a version conflict.
func (m *PresaleMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// SetProgress publishes the sale's cumulative units and current tier.
func (m *PresaleMetrics) SetProgress(totalSold, tier uint64) {
	if m == nil {
		return
	}
	m.unitsSold.Set(float64(totalSold))
	m.currentTier.Set(float64(tier))
}

// RecordCollected adds a payment credited to the treasury. Amounts are
// approximated as float64.
func (m *PresaleMetrics) RecordCollected(asset string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.collected.WithLabelValues(asset).Add(amount)
}
