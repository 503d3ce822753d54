package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/classify"
)

var errDown = &classify.HTTPError{
	Method:   http.MethodGet,
	URL:      "http://billing/health",
	Response: &classify.Response{StatusCode: 503},
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Timeout: time.Minute})
	return NewMonitor(registry, []string{"users", "billing"})
}

func trip(t *testing.T, r *breaker.Registry, endpoint string) {
	t.Helper()
	_ = r.Get(endpoint).Do(context.Background(), func(context.Context) error { return errDown })
	if r.Get(endpoint).State() != breaker.StateOpen {
		t.Fatalf("expected %s to be open", endpoint)
	}
}

func TestMonitor_AllHealthy(t *testing.T) {
	m := newTestMonitor(t)

	report := m.CheckHealth()
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if len(report.Endpoints) != 2 {
		t.Errorf("expected configured endpoints in report, got %d", len(report.Endpoints))
	}
}

func TestMonitor_OpenBreakerIsCritical(t *testing.T) {
	m := newTestMonitor(t)
	trip(t, m.Registry(), "users")

	report := m.CheckHealth()
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	users := report.Endpoints["users"]
	if users.Breaker != breaker.StateOpen || users.FailureCount != 1 {
		t.Errorf("unexpected users health: %+v", users)
	}
	if users.RetryIn == "" {
		t.Error("expected retry countdown for open breaker")
	}
	if report.Endpoints["billing"].Status != StatusHealthy {
		t.Errorf("billing should stay healthy")
	}
}

func TestMonitor_FailedProbeIsDegraded(t *testing.T) {
	m := newTestMonitor(t)
	m.RecordProbe("billing", 12*time.Millisecond, errDown)
	m.RecordProbe("users", 3*time.Millisecond, nil)

	report := m.CheckHealth()
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}

	probe := report.Endpoints["billing"].LastProbe
	if probe == nil || probe.OK {
		t.Fatalf("expected failed probe, got %+v", probe)
	}
	if probe.Diagnostic != "[SERVER_ERROR] HTTP 503 - GET http://billing/health: HTTP 503" {
		t.Errorf("unexpected diagnostic %q", probe.Diagnostic)
	}
	if probe.Message == nil || probe.Message.Title != "Server Error" {
		t.Errorf("unexpected message %+v", probe.Message)
	}
	if !report.Endpoints["users"].LastProbe.OK {
		t.Error("expected users probe ok")
	}
}

func TestMonitor_OpenProbeDiagnostic(t *testing.T) {
	m := newTestMonitor(t)
	err := &breaker.OpenError{Endpoint: "users", RetryIn: 5 * time.Second}
	m.RecordProbe("users", 0, err)

	probe := m.CheckHealth().Endpoints["users"].LastProbe
	if probe.Diagnostic != err.Error() {
		t.Errorf("expected open error diagnostic, got %q", probe.Diagnostic)
	}
	if probe.Message.Title != "Service Temporarily Unavailable" {
		t.Errorf("unexpected title %q", probe.Message.Title)
	}
}

func TestServer_Health(t *testing.T) {
	m := newTestMonitor(t)
	srv := NewServer(m, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	trip(t, m.Registry(), "users")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("expected critical, got %s", body["status"])
	}
}

func TestServer_BreakersAndReset(t *testing.T) {
	m := newTestMonitor(t)
	srv := NewServer(m, 0, nil)
	trip(t, m.Registry(), "users")
	trip(t, m.Registry(), "billing")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/breakers", nil))
	var snaps []breaker.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Endpoint != "billing" || snaps[0].State != breaker.StateOpen {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breakers/users/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.Registry().Get("users").State() != breaker.StateClosed {
		t.Error("expected users closed after reset")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breakers/nope/reset", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breakers/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.Registry().Get("billing").State() != breaker.StateClosed {
		t.Error("expected billing closed after reset all")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breakers/reset", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET reset, got %d", rec.Code)
	}
}

func TestServer_Detailed(t *testing.T) {
	m := newTestMonitor(t)
	m.RecordProbe("users", time.Millisecond, errors.New("boom"))
	srv := NewServer(m, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Endpoints["users"].LastProbe.Diagnostic != "[UNKNOWN] boom" {
		t.Errorf("unexpected diagnostic %q", report.Endpoints["users"].LastProbe.Diagnostic)
	}
}
