package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts money-movement outcomes for settlement, transfers
// and payouts.
type SettlementMetrics struct {
	orders    *prometheus.CounterVec
	duration  prometheus.Histogram
	transfers *prometheus.CounterVec
	payouts   *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_orders_total",
		Help: "Settlement attempts by result code.",
	}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Duration of the settlement transaction in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_results_total",
		Help: "Transfer submissions by outcome.",
	}, []string{"status"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transitions_total",
		Help: "Seller payout state transitions.",
	}, []string{"status"})
	reg.MustRegister(orders, duration, transfers, payouts)
	return &SettlementMetrics{
		orders:    orders,
		duration:  duration,
		transfers: transfers,
		payouts:   payouts,
	}
}

// ObserveSettlement records one settlement attempt.
func (m *SettlementMetrics) ObserveSettlement(result string, duration time.Duration) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(result)).Inc()
	m.duration.Observe(duration.Seconds())
}

// IncTransfer counts a transfer outcome (accepted, skipped, failed).
func (m *SettlementMetrics) IncTransfer(status string) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncPayout counts a payout transition (pending, paid, failed).
func (m *SettlementMetrics) IncPayout(status string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}
