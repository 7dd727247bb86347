package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
)

func TestHealthReadyAllHealthy(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	checks := []ReadinessCheck{
		{Name: "db", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return nil }},
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, checks, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Evercraft-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReadyReportsFailures(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	checks := []ReadinessCheck{
		{Name: "db", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, checks, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "redis") {
		t.Fatalf("expected failing check in body, got %s", resp.Body.String())
	}
}
