package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestSettlementMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveSettlement("ok", 40*time.Millisecond)
	m.ObserveSettlement("ok", 60*time.Millisecond)
	m.ObserveSettlement("", 10*time.Millisecond)
	m.IncTransfer("accepted")
	m.IncTransfer("skipped")
	m.IncPayout("paid")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "settlement_orders_total", "result", "ok")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "settlement_orders_total", "result", "unknown")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "transfer_results_total", "status", "skipped")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "payout_transitions_total", "status", "paid")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	hist := findMetricFamily(mfs, "settlement_duration_seconds")
	require.NotNil(t, hist)
	require.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var m *SettlementMetrics
	m.ObserveSettlement("ok", time.Second)
	m.IncTransfer("failed")
	m.IncPayout("failed")

	unregistered := NewSettlementMetrics(nil)
	unregistered.IncTransfer("accepted")
}
