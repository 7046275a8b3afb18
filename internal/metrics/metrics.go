package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the deduction collectors. A nil *Recorder records nothing.
type Recorder struct {
	// Deductions counts DeductOne calls by strategy and outcome.
	Deductions *prometheus.CounterVec
	// Retries counts backoff waits by strategy.
	Retries *prometheus.CounterVec
	// Duration observes DeductOne latency by strategy.
	Duration *prometheus.HistogramVec
	// LeaseRenewals counts watchdog renewals by result.
	LeaseRenewals *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	return &Recorder{
		Deductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_deductions_total",
			Help: "Total number of deduction attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_deduction_retries_total",
			Help: "Total number of contention retries by strategy",
		}, []string{"strategy"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stock_deduction_duration_seconds",
			Help:    "Latency of deduction attempts",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"strategy"}),
		LeaseRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_lease_renewals_total",
			Help: "Total number of lease renewals by result",
		}, []string{"result"}),
	}
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers all collectors on reg.
func (r *Recorder) Register(reg prometheus.Registerer) {
	reg.MustRegister(r.Deductions, r.Retries, r.Duration, r.LeaseRenewals)
}

func (r *Recorder) ObserveDeduction(strategy, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Deductions.WithLabelValues(strategy, outcome).Inc()
	r.Duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRetry(strategy string) {
	if r == nil {
		return
	}
	r.Retries.WithLabelValues(strategy).Inc()
}

// Renewal results.
const (
	RenewalRenewed = "renewed"
	RenewalLost    = "lost"
	RenewalError   = "error"
)

func (r *Recorder) ObserveRenewal(result string) {
	if r == nil {
		return
	}
	r.LeaseRenewals.WithLabelValues(result).Inc()
}
