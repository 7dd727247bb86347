package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/metrics"
)

type fakeLock struct {
	held     map[string]bool
	released []string
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]bool{}} }

func (f *fakeLock) Acquire(_ context.Context, job string) (bool, error) {
	if f.held[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	delete(f.held, job)
	f.released = append(f.released, job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, registry *Registry, lock Lock) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunsDueJobsEvenOnFailure(t *testing.T) {
	registry := NewRegistry()
	ok := &testJob{name: "success"}
	bad := &testJob{name: "fail", err: errors.New("boom")}
	_ = registry.Register(ok, time.Hour)
	_ = registry.Register(bad, time.Hour)

	lock := newFakeLock()
	service := newTestService(t, registry, lock)
	service.runDue(context.Background())

	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", ok.runs, bad.runs)
	}
	if len(lock.released) != 2 {
		t.Fatalf("expected both locks released, got %v", lock.released)
	}

	service.runDue(context.Background())
	if ok.runs != 1 {
		t.Fatalf("job ran again before its interval elapsed")
	}
}

func TestServiceSkipsJobHeldElsewhere(t *testing.T) {
	registry := NewRegistry()
	job := &testJob{name: "payout-batch"}
	_ = registry.Register(job, time.Hour)

	lock := newFakeLock()
	lock.held["payout-batch"] = true
	service := newTestService(t, registry, lock)
	service.runDue(context.Background())

	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
	if len(lock.released) != 0 {
		t.Fatalf("released a lock it never held: %v", lock.released)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	registry := NewRegistry()
	job := &testJob{name: "transfer-retry"}
	_ = registry.Register(job, time.Hour)
	service := newTestService(t, registry, newFakeLock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceRequiresRegistry(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Lock:   newFakeLock(),
	})
	if err == nil {
		t.Fatal("expected registry error")
	}
}
