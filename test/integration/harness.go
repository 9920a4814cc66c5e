// Package integration provides a reusable test harness for end-to-end
// testing of the repair desk server. It starts the full HTTP stack over the
// embedded section definitions, the demo accounts, and an in-memory or
// miniredis-backed idempotency store.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/pitabwire/repairdesk/internal/capability"
	"github.com/pitabwire/repairdesk/internal/command"
	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/search"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/internal/transport"
	"github.com/pitabwire/repairdesk/model"
)

// testSecret signs every session token the harness issues.
const testSecret = "integration-secret-0123456789abcdef"

const testIssuer = "repairdesk-test"

// TestHarness encapsulates a fully wired server for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	cfg    *config.Config

	// Internal components exposed for advanced test scenarios.
	Sections    *section.Registry
	Sessions    *session.Manager
	CapResolver *capability.Resolver
	Metrics     *observability.Metrics
	Gatherer    *prometheus.Registry
	Idempotency command.IdempotencyStore
	// Redis and Breaker are set when the harness runs WithRedisIdempotency.
	Redis   *miniredis.Miniredis
	Breaker *command.BreakerStore
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policyFile     string
	accounts       []session.Account
	idleTTL        time.Duration
	handlerTimeout time.Duration
	redis          bool
	noIdempotency  bool
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithAccounts replaces the demo accounts.
func WithAccounts(accounts ...session.Account) HarnessOption {
	return func(c *harnessConfig) {
		c.accounts = accounts
	}
}

// WithIdleTTL expires sessions left idle for d.
func WithIdleTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.idleTTL = d
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRedisIdempotency keeps idempotency keys in a miniredis instance.
func WithRedisIdempotency() HarnessOption {
	return func(c *harnessConfig) {
		c.redis = true
	}
}

// WithoutIdempotency ignores idempotency keys.
func WithoutIdempotency() HarnessOption {
	return func(c *harnessConfig) {
		c.noIdempotency = true
	}
}

// NewTestHarness creates and starts a full server instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		accounts:       session.DefaultAccounts(),
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Load and validate definitions, build sections.
	defs, err := definition.NewLoader().LoadFS(definition.Embedded())
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	catalog := section.NewCatalog(language.English)
	validator := definition.NewValidator().WithCatalog(catalog.RendererNames(), catalog.ValidatorNames())
	if verrs := validator.Validate(defs); len(verrs) > 0 {
		t.Fatalf("definitions invalid: %v", verrs)
	}
	h.Sections, err = section.Load(definition.NewRegistry(defs), catalog, section.Options{Locale: language.English})
	if err != nil {
		t.Fatalf("build sections: %v", err)
	}

	// Step 2: Metrics on a private registry.
	h.Gatherer = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Gatherer)
	for name, n := range h.Sections.Stores().Sizes() {
		h.Metrics.SetStoreRecords(name, n)
	}

	// Step 3: Capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	h.CapResolver = capability.NewResolver(evaluator, 0) // no caching in tests
	h.CapResolver.SetCacheObserver(h.Metrics.RecordCapabilityCache)

	// Step 4: Sessions.
	accounts, err := session.NewAccounts(hc.accounts)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	signer, err := session.NewSigner(testSecret, testIssuer, time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	h.Sessions = session.NewManager(accounts, signer, hc.idleTTL)

	// Step 5: Idempotency store.
	readiness := observability.ReadinessChecks{
		SectionsLoaded: func() int { return len(h.Sections.All()) },
		Dependencies:   map[string]observability.HealthChecker{},
	}
	var guard *command.Guard
	if !hc.noIdempotency {
		if hc.redis {
			h.Redis = miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			store := command.NewRedisIdempotencyStore(client)
			readiness.Dependencies["idempotency_store"] = observability.CheckFunc(store.Ping)
			h.Breaker = command.NewBreakerStore(store, 2, time.Minute)
			h.Idempotency = h.Breaker
		} else {
			h.Idempotency = command.NewMemoryIdempotencyStore()
		}
		guard = command.NewGuard(h.Idempotency, time.Hour, nil)
	}

	// Step 6: Providers.
	searchProvider := search.NewSearchProvider(h.Sections, 3*time.Second, 50)
	searchProvider.SetObserver(h.Metrics.RecordSearchSection)

	// Step 7: Config.
	h.cfg = config.Defaults()
	h.cfg.Session.Secret = testSecret
	h.cfg.Session.Issuer = testIssuer
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}

	// Step 8: Router with the full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:    h.cfg,
		Sessions:  h.Sessions,
		Resolver:  h.CapResolver,
		Menu:      metadata.NewMenuProvider(h.Sections),
		Pages:     metadata.NewPageProvider(h.Sections, metadata.NewActionProvider()),
		Search:    searchProvider,
		Guard:     guard,
		Metrics:   h.Metrics,
		Gatherer:  h.Gatherer,
		Readiness: readiness,
	})

	// Step 9: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Login signs in and returns the session token. It fails the test on any
// status other than 200.
func (h *TestHarness) Login(username, password string) string {
	h.t.Helper()
	resp := h.POST("/ui/login", map[string]string{"username": username, "password": password}, "")
	var body model.LoginResponse
	h.AssertJSON(h.t, resp, http.StatusOK, &body)
	return body.Token
}

// LoginAs signs in with a demo account, whose password is its username.
func (h *TestHarness) LoginAs(username string) string {
	h.t.Helper()
	return h.Login(username, username)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// POSTRaw posts body as is, for malformed and oversized payloads.
func (h *TestHarness) POSTRaw(path, body, token string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), "POST", h.server.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(req)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.send(req)
}

func (h *TestHarness) send(req *http.Request) *http.Response {
	h.t.Helper()
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

// ParseJSON reads the response body into target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code and
// drains the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expected {
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertError checks the status and the error envelope code.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, expected int, code string) model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, expected, &body)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q", body.Error.Code, code)
	}
	return body.Error
}

// --- Section helpers ---

// Rows returns the current page of a section for token.
func (h *TestHarness) Rows(sectionID, token string) model.TablePayload {
	h.t.Helper()
	var body model.TableResponse
	h.AssertJSON(h.t, h.GET("/ui/sections/"+sectionID+"/rows", token), http.StatusOK, &body)
	return body.Data
}

// View applies one view interaction and returns the resulting page.
func (h *TestHarness) View(sectionID, token string, req map[string]any) model.TablePayload {
	h.t.Helper()
	var body model.TableResponse
	h.AssertJSON(h.t, h.POST("/ui/sections/"+sectionID+"/view", req, token), http.StatusOK, &body)
	return body.Data
}

// OpenForm opens a dialog and returns it.
func (h *TestHarness) OpenForm(sectionID, token, mode, recordID string) model.DialogDescriptor {
	h.t.Helper()
	var body model.DialogResponse
	resp := h.POST("/ui/sections/"+sectionID+"/form/open", map[string]any{"mode": mode, "record_id": recordID}, token)
	h.AssertJSON(h.t, resp, http.StatusOK, &body)
	return body.Data
}

// StoreSize returns how many records a section holds.
func (h *TestHarness) StoreSize(sectionID string) int {
	h.t.Helper()
	s, ok := h.Sections.Get(sectionID)
	if !ok {
		h.t.Fatalf("section %q not loaded", sectionID)
	}
	return s.Store().Len()
}

// --- Helpers ---

// RowIDs lists the IDs on a page in display order.
func RowIDs(p model.TablePayload) []string {
	ids := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		ids[i] = r.ID
	}
	return ids
}

// NavigationIDs lists the section IDs in a navigation tree.
func NavigationIDs(tree model.NavigationTree) []string {
	ids := make([]string, len(tree.Items))
	for i, n := range tree.Items {
		ids[i] = n.ID
	}
	return ids
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
