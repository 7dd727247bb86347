package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, days int, purge PurgeFunc) *retentionJob {
	t.Helper()
	job, err := NewRetentionJob(RetentionJobParams{
		Name:          "outbox-retention",
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            passthroughTx{},
		Purge:         purge,
		RetentionDays: days,
	})
	if err != nil {
		t.Fatalf("NewRetentionJob: %v", err)
	}
	return job.(*retentionJob)
}

func TestRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	var got time.Time
	calls := 0
	job := newRetentionJob(t, 30, func(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
		calls++
		got = cutoff
		return 7, nil
	})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one purge, got %d", calls)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, got)
	}
}

func TestRetentionJobWrapsPurgeError(t *testing.T) {
	job := newRetentionJob(t, 1, func(context.Context, *gorm.DB, time.Time) (int64, error) {
		return 0, errors.New("boom")
	})
	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "outbox-retention: boom") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewRetentionJobRejectsZeroRetention(t *testing.T) {
	_, err := NewRetentionJob(RetentionJobParams{
		Name:   "notification-retention",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     passthroughTx{},
		Purge:  func(context.Context, *gorm.DB, time.Time) (int64, error) { return 0, nil },
	})
	if err == nil {
		t.Fatal("expected error for zero retention")
	}
}
