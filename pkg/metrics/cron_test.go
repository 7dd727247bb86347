package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsBucketsEveryTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "payout-batch"

	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("rail down"))
	m.IncSkipped(job)
	m.IncSkipped(job)
	m.IncLockError(job)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, CronResultSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, CronResultFailure)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(job, CronResultSkipped)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, CronResultLockError)))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "evercraft_cron_job_duration_seconds", "job", job)
	require.NoError(t, err)
	require.InDelta(t, 1.25, sum, 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, nil)
	m.IncSkipped("x")
	NewCronJobMetrics(nil).IncLockError("x")
}
