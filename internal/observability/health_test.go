package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func readiness(t *testing.T, checks ReadinessChecks) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	HandleReady(checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/ready", nil))

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_returnsOK(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	rec := httptest.NewRecorder()
	HandleHealth().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Commit != "abc1234" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Uptime == "" {
		t.Error("uptime should be reported")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestHandleReady_sectionsLoaded(t *testing.T) {
	code, resp := readiness(t, ReadinessChecks{SectionsLoaded: func() int { return 14 }})
	if code != http.StatusOK || resp.Status != "ready" {
		t.Fatalf("readiness = %d %q, want 200 ready", code, resp.Status)
	}
	if resp.Checks["sections"].Status != "ok" {
		t.Errorf("sections = %+v", resp.Checks["sections"])
	}
}

func TestHandleReady_noSections(t *testing.T) {
	for name, checks := range map[string]ReadinessChecks{
		"zero":     {SectionsLoaded: func() int { return 0 }},
		"no probe": {},
	} {
		t.Run(name, func(t *testing.T) {
			code, resp := readiness(t, checks)
			if code != http.StatusServiceUnavailable || resp.Status != "not_ready" {
				t.Errorf("readiness = %d %q, want 503 not_ready", code, resp.Status)
			}
			if resp.Checks["sections"].Error == "" {
				t.Error("sections error should have a message")
			}
		})
	}
}

func TestHandleReady_dependencies(t *testing.T) {
	code, resp := readiness(t, ReadinessChecks{
		SectionsLoaded: func() int { return 1 },
		Dependencies: map[string]HealthChecker{
			"idempotency_store": CheckFunc(func(context.Context) error { return nil }),
			"policy":            CheckFunc(func(context.Context) error { return errors.New("policy file unreadable") }),
		},
	})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if resp.Checks["idempotency_store"].Status != "ok" {
		t.Errorf("idempotency_store = %+v", resp.Checks["idempotency_store"])
	}
	if got := resp.Checks["policy"]; got.Status != "error" || got.Error != "policy file unreadable" {
		t.Errorf("policy = %+v", got)
	}
}

func TestHandleReady_checkTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the check timeout")
	}
	start := time.Now()
	code, resp := readiness(t, ReadinessChecks{
		SectionsLoaded: func() int { return 1 },
		Dependencies: map[string]HealthChecker{
			"slow": CheckFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		},
	})
	if code != http.StatusServiceUnavailable || resp.Checks["slow"].Status != "error" {
		t.Errorf("readiness = %d %+v", code, resp.Checks["slow"])
	}
	if elapsed := time.Since(start); elapsed > checkTimeout+time.Second {
		t.Errorf("readiness took %v", elapsed)
	}
}
