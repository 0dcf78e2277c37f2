package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// PaymentMetrics tracks streaming ticks and boosts. It satisfies app.Observer.
type PaymentMetrics struct {
	TicksTotal     *prometheus.CounterVec
	StreamedTokens prometheus.Counter
	ActiveStreams  prometheus.Gauge
	BoostsTotal    *prometheus.CounterVec
	BoostedTokens  prometheus.Counter
}

// NewPaymentMetrics creates and registers payment metrics on the given registry.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ticks_total",
			Help:      "Total number of streaming ticks, by result.",
		}, []string{"result"}),
		StreamedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "tokens_sent_total",
			Help:      "Tokens transferred by streaming ticks.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Number of streaming sessions currently emitting payments.",
		}),
		BoostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boost",
			Name:      "requests_total",
			Help:      "Total number of boost requests, by result.",
		}, []string{"result"}),
		BoostedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boost",
			Name:      "tokens_sent_total",
			Help:      "Tokens transferred by successful boosts.",
		}),
	}

	reg.MustRegister(m.TicksTotal, m.StreamedTokens, m.ActiveStreams, m.BoostsTotal, m.BoostedTokens)
	return m
}

func (m *PaymentMetrics) ObserveTick(result string, amount decimal.Decimal) {
	m.TicksTotal.WithLabelValues(result).Inc()
	if amount.IsPositive() {
		m.StreamedTokens.Add(amount.InexactFloat64())
	}
}

func (m *PaymentMetrics) SetActiveStreams(n int) {
	m.ActiveStreams.Set(float64(n))
}

func (m *PaymentMetrics) ObserveBoost(result string, amount decimal.Decimal) {
	m.BoostsTotal.WithLabelValues(result).Inc()
	if result == "sent" && amount.IsPositive() {
		m.BoostedTokens.Add(amount.InexactFloat64())
	}
}
