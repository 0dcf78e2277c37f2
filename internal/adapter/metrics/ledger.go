package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Circuit breaker states as exported by the breaker_state gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// UpstreamMetrics tracks calls to external services: the token ledger, the
// broadcast relay and the price APIs.
type UpstreamMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	BreakerChanges  *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics on the given registry.
func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream calls, by service, operation and result.",
		}, []string{"service", "operation", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream calls in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"service", "operation"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service"}),
		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker transitions, by service and new state.",
		}, []string{"service", "state"}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.BreakerState, m.BreakerChanges)
	return m
}

// ObserveRequest records one upstream call. A nil receiver is a no-op.
func (m *UpstreamMetrics) ObserveRequest(service, operation string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RequestsTotal.WithLabelValues(service, operation, result).Inc()
	m.RequestDuration.WithLabelValues(service, operation).Observe(took.Seconds())
}

// SetBreakerState records a breaker transition. A nil receiver is a no-op.
func (m *UpstreamMetrics) SetBreakerState(service, stateName string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(service).Set(float64(state))
	m.BreakerChanges.WithLabelValues(service, stateName).Inc()
}
