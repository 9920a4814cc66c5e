package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Set from cmd/repairdesk at startup.
var (
	Version = "dev"
	Commit  = "unknown"
)

var startedAt = time.Now()

const checkTimeout = 2 * time.Second

// HealthResponse answers /ui/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse answers /ui/ready. Status is "ready" only when every
// check passed.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker is a dependency readiness can probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks lists what /ui/ready probes. The "sections" check always
// runs and fails while no section is served.
type ReadinessChecks struct {
	SectionsLoaded func() int
	Dependencies   map[string]HealthChecker
}

var errNoSections = errors.New("no sections loaded")

func (rc ReadinessChecks) sections(context.Context) error {
	if rc.SectionsLoaded == nil || rc.SectionsLoaded() == 0 {
		return errNoSections
	}
	return nil
}

// run probes every check concurrently, each under its own timeout.
func (rc ReadinessChecks) run(ctx context.Context) ReadinessResponse {
	checks := map[string]HealthChecker{"sections": CheckFunc(rc.sections)}
	for name, c := range rc.Dependencies {
		checks[name] = c
	}

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]CheckResult, len(checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checks {
		wg.Go(func() {
			res := probe(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			resp.Checks[name] = res
			if res.Status != "ok" {
				resp.Status = "not_ready"
			}
		})
	}
	wg.Wait()
	return resp
}

func probe(parent context.Context, c HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

// HandleHealth is the liveness probe; it never checks dependencies.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
			Uptime:  time.Since(startedAt).Round(time.Second).String(),
		})
	}
}

// HandleReady answers 503 while any check fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checks.run(r.Context())
		status := http.StatusOK
		if resp.Status != "ready" {
			status = http.StatusServiceUnavailable
		}
		writeProbe(w, status, resp)
	}
}

func writeProbe(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
