package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingRunMetrics records per-runner outcomes of a billing cycle.
// The runner label is "due" or "failure_queue".
type BillingRunMetrics struct {
	duration   *prometheus.HistogramVec
	processed  *prometheus.CounterVec
	successful *prometheus.CounterVec
	failed     *prometheus.CounterVec
	skipped    *prometheus.CounterVec
}

// NewBillingRunMetrics registers the billing run metrics on the provided registerer.
func NewBillingRunMetrics(reg prometheus.Registerer) *BillingRunMetrics {
	if reg == nil {
		return &BillingRunMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_runner_duration_seconds",
		Help:    "Duration of one billing runner pass in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"runner"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_items_processed",
		Help: "Schedules and failure records picked up by a runner.",
	}, []string{"runner"})
	successful := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_items_successful",
		Help: "Charge attempts that were approved.",
	}, []string{"runner"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_items_failed",
		Help: "Charge attempts that were declined or errored.",
	}, []string{"runner"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_items_skipped",
		Help: "Items skipped by an eligibility gate.",
	}, []string{"runner"})
	reg.MustRegister(duration, processed, successful, failed, skipped)
	return &BillingRunMetrics{
		duration:   duration,
		processed:  processed,
		successful: successful,
		failed:     failed,
		skipped:    skipped,
	}
}

// ObserveDuration records how long one runner pass took.
func (b *BillingRunMetrics) ObserveDuration(runner string, duration time.Duration) {
	if b == nil || b.duration == nil {
		return
	}
	b.duration.WithLabelValues(normalizeLabel(runner)).Observe(duration.Seconds())
}

// AddOutcomes accumulates one runner pass worth of counters.
func (b *BillingRunMetrics) AddOutcomes(runner string, processed, successful, failed, skipped int) {
	if b == nil || b.processed == nil {
		return
	}
	label := normalizeLabel(runner)
	b.processed.WithLabelValues(label).Add(float64(processed))
	b.successful.WithLabelValues(label).Add(float64(successful))
	b.failed.WithLabelValues(label).Add(float64(failed))
	b.skipped.WithLabelValues(label).Add(float64(skipped))
}
