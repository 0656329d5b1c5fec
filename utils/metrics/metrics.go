package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Cycle outcomes
const (
	OutcomeCompleted        = "completed"
	OutcomeNoOpportunity    = "no_opportunity"
	OutcomeVenueUnreachable = "venue_unreachable"
	OutcomeFailed           = "failed"
)

// Approval and swap results
const (
	ResultSubmitted = "submitted"
	ResultSkipped   = "skipped"
	ResultConfirmed = "confirmed"
	ResultFailed    = "failed"
)

// ArbitrageMetrics tracks cycles, quotes, approvals and swaps. Each instance
// owns its registry so independent pipelines never collide on registration.
type ArbitrageMetrics struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	Opportunities prometheus.Counter
	VenuePrice    *prometheus.GaugeVec
	Spread        prometheus.Gauge
	Approvals     *prometheus.CounterVec
	Swaps         *prometheus.CounterVec
	GasUsed       prometheus.Histogram
	ExecutionTime prometheus.Histogram
}

func NewArbitrageMetrics(namespace string) *ArbitrageMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &ArbitrageMetrics{
		registry: registry,
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of arbitrage cycles by outcome",
		}, []string{"outcome"}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Total number of detected price discrepancies",
		}),
		VenuePrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "venue_price",
			Help:      "Last observed venue price, TokenB per TokenA",
		}, []string{"venue"}),
		Spread: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread",
			Help:      "Last observed spread between the venues, TokenB per TokenA",
		}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total number of allowance checks by result",
		}, []string{"result"}),
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Total number of swaps by venue and result",
		}, []string{"venue", "result"}),
		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_used",
			Help:      "Gas used per confirmed transaction",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		}),
		ExecutionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_time_seconds",
			Help:      "Time taken to execute a two-leg arbitrage",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the registry backing these metrics
func (m *ArbitrageMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *ArbitrageMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Summary returns the summed value of every counter, keyed by metric name
func (m *ArbitrageMetrics) Summary() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	summary := make(map[string]float64)
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		summary[family.GetName()] = sumCounters(family.GetMetric())
	}
	return summary, nil
}

func sumCounters(metrics []*dto.Metric) float64 {
	var total float64
	for _, metric := range metrics {
		if metric.Counter != nil {
			total += metric.Counter.GetValue()
		}
	}
	return total
}
