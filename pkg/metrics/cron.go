package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CronResultSuccess   = "success"
	CronResultFailure   = "failure"
	CronResultSkipped   = "skipped"
	CronResultLockError = "lock_error"
)

// CronJobMetrics records cron worker ticks per job. Every due tick lands in
// exactly one result bucket; only ticks that ran the job are timed.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evercraft_cron",
			Name:      "job_runs_total",
			Help:      "Due cron job ticks by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evercraft_cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of cron jobs that acquired their lock.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

// ObserveRun times a job that ran and counts it as success or failure.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(took.Seconds())
	result := CronResultSuccess
	if err != nil {
		result = CronResultFailure
	}
	m.inc(job, result)
}

// IncSkipped counts a tick lost to another instance holding the job lock.
func (m *CronJobMetrics) IncSkipped(job string) { m.inc(job, CronResultSkipped) }

// IncLockError counts a tick that could not reach the lock store.
func (m *CronJobMetrics) IncLockError(job string) { m.inc(job, CronResultLockError) }

func (m *CronJobMetrics) inc(job, result string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), result).Inc()
}
