package metrics

import "github.com/prometheus/client_golang/prometheus"

// PriceMetrics holds Prometheus metrics for the price oracle cache.
type PriceMetrics struct {
	Hits      *prometheus.CounterVec
	Misses    prometheus.Counter
	Fallbacks *prometheus.CounterVec
}

// NewPriceMetrics creates and registers price cache metrics on the given registry.
func NewPriceMetrics(reg prometheus.Registerer) *PriceMetrics {
	m := &PriceMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_cache",
			Name:      "hits_total",
			Help:      "Total number of price cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_cache",
			Name:      "misses_total",
			Help:      "Total number of price lookups that had to query upstream.",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price_cache",
			Name:      "fallbacks_total",
			Help:      "Prices served from a fallback after an upstream failure, by source and kind.",
		}, []string{"source", "kind"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Fallbacks)
	return m
}

func (m *PriceMetrics) Hit(layer string) {
	if m != nil {
		m.Hits.WithLabelValues(layer).Inc()
	}
}

func (m *PriceMetrics) Miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *PriceMetrics) Fallback(source, kind string) {
	if m != nil {
		m.Fallbacks.WithLabelValues(source, kind).Inc()
	}
}
