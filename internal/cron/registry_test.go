package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryDueAdvancesSchedule(t *testing.T) {
	registry := NewRegistry()
	fast := &stubJob{name: "fast"}
	slow := &stubJob{name: "slow"}
	if err := registry.Register(fast, time.Minute); err != nil {
		t.Fatalf("register fast: %v", err)
	}
	if err := registry.Register(slow, time.Hour); err != nil {
		t.Fatalf("register slow: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("expected both jobs due on first tick, got %d", len(due))
	}
	if due := registry.Due(start.Add(30 * time.Second)); len(due) != 0 {
		t.Fatalf("expected nothing due, got %d", len(due))
	}
	due := registry.Due(start.Add(time.Minute))
	if len(due) != 1 || due[0] != fast {
		t.Fatalf("expected only fast job due, got %v", due)
	}
	if due := registry.Due(start.Add(time.Hour)); len(due) != 2 {
		t.Fatalf("expected both jobs due after an hour, got %d", len(due))
	}
}

func TestRegistryRejectsDuplicatesAndBadIntervals(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubJob{name: "a"}, time.Minute); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "a"}, time.Minute); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if err := registry.Register(&stubJob{name: "b"}, 0); err == nil {
		t.Fatal("expected interval error")
	}
	if err := registry.Register(nil, time.Minute); err == nil {
		t.Fatal("expected nil job error")
	}

	jobs := registry.Jobs()
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("internal slice leaked")
	}
}
