package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/model"
)

// testDeps is a router with no sessions or sections behind it; enough for
// the public endpoints and the auth wall.
func testDeps() Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	return Dependencies{
		Config:    cfg,
		Readiness: observability.ReadinessChecks{SectionsLoaded: func() int { return 1 }},
	}
}

func serve(deps Dependencies, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter_publicEndpoints(t *testing.T) {
	noSections := testDeps()
	noSections.Readiness = observability.ReadinessChecks{}
	noMetrics := testDeps()
	noMetrics.Config.Observability.Metrics.Enabled = false

	tests := []struct {
		name   string
		deps   Dependencies
		path   string
		status int
	}{
		{"health", testDeps(), "/ui/health", http.StatusOK},
		{"ready", testDeps(), "/ui/ready", http.StatusOK},
		{"ready without sections", noSections, "/ui/ready", http.StatusServiceUnavailable},
		{"metrics disabled", noMetrics, "/metrics", http.StatusNotFound},
		{"unknown route", testDeps(), "/ui/pages/orders", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(tt.deps, http.MethodGet, tt.path)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("X-Correlation-Id") == "" {
				t.Errorf("public responses still get the common headers: %v", w.Header())
			}
		})
	}
}

func TestNewRouter_healthBody(t *testing.T) {
	var body observability.HealthResponse
	if err := json.NewDecoder(serve(testDeps(), http.MethodGet, "/ui/health").Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("health = %+v", body)
	}
}

func TestNewRouter_unknownRouteIsEnvelope(t *testing.T) {
	w := serve(testDeps(), http.MethodGet, "/ui/pages/orders")
	if ee := decodeError(t, w); ee.Code != model.ErrNotFound || !strings.Contains(ee.Message, "/ui/pages/orders") {
		t.Errorf("envelope = %+v", ee)
	}
}

func TestNewRouter_metricsExposeStoreGauges(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/metrics", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "repairdesk_store_records") {
		t.Error("metrics output should include store gauges")
	}
}

func TestNewRouter_deskRoutesNeedSession(t *testing.T) {
	routes := map[string][]string{
		http.MethodGet: {
			"/ui/navigation",
			"/ui/search",
			"/ui/sections/orders",
			"/ui/sections/orders/rows",
			"/ui/sections/orders/form",
		},
		http.MethodPost: {
			"/ui/logout",
			"/ui/sections/orders/view",
			"/ui/sections/orders/actions",
			"/ui/sections/orders/form/open",
			"/ui/sections/orders/form/change",
			"/ui/sections/orders/form/submit",
			"/ui/sections/orders/form/delete",
			"/ui/sections/orders/form/close",
		},
	}
	deps := testDeps()
	for method, paths := range routes {
		for _, path := range paths {
			t.Run(method+" "+path, func(t *testing.T) {
				w := serve(deps, method, path)
				if w.Code != http.StatusUnauthorized {
					t.Errorf("status = %d, want 401", w.Code)
				}
				if ee := decodeError(t, w); ee.TraceID == "" {
					t.Error("401 should carry a trace id")
				}
			})
		}
	}
}
