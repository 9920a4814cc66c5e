package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
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
	"github.com/pitabwire/repairdesk/model"
)

// --- Test helpers ---

func zapNop() *zap.Logger { return zap.NewNop() }

type testServer struct {
	handler  http.Handler
	sessions *session.Manager
	sections *section.Registry
	metrics  *observability.Metrics
}

// newTestServer boots the full router over the embedded section
// definitions, the embedded policy, and the demo accounts.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	defs, err := definition.NewLoader().LoadFS(definition.Embedded())
	if err != nil {
		t.Fatalf("LoadFS() error: %v", err)
	}
	sections, err := section.Load(definition.NewRegistry(defs), section.NewCatalog(language.English), section.Options{})
	if err != nil {
		t.Fatalf("section.Load() error: %v", err)
	}
	policy, err := capability.NewStaticPolicyEvaluator("")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error: %v", err)
	}
	accounts, err := session.NewAccounts(session.DefaultAccounts())
	if err != nil {
		t.Fatalf("NewAccounts() error: %v", err)
	}
	signer, err := session.NewSigner(strings.Repeat("k", 32), "repairdesk", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner() error: %v", err)
	}
	sessions := session.NewManager(accounts, signer, 0)

	cfg := config.Defaults()
	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)
	for name, n := range sections.Stores().Sizes() {
		metrics.SetStoreRecords(name, n)
	}

	h := NewRouter(Dependencies{
		Config:   cfg,
		Logger:   zap.NewNop(),
		Sessions: sessions,
		Resolver: capability.NewResolver(policy, time.Minute),
		Menu:     metadata.NewMenuProvider(sections),
		Pages:    metadata.NewPageProvider(sections, metadata.NewActionProvider()),
		Search:   search.NewSearchProvider(sections, time.Second, 50),
		Guard:    command.NewGuard(command.NewMemoryIdempotencyStore(), time.Hour, nil),
		Metrics:  metrics,
		Gatherer: reg,
		Readiness: observability.ReadinessChecks{
			SectionsLoaded: func() int { return len(sections.All()) },
		},
	})
	return &testServer{handler: h, sessions: sessions, sections: sections, metrics: metrics}
}

// do sends a request. body is JSON-encoded unless nil; headers are
// name/value pairs.
func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, "POST", "/ui/login", "", map[string]string{"username": username, "password": password})
	if w.Code != 200 {
		t.Fatalf("login %s: status = %d, body = %s", username, w.Code, w.Body.String())
	}
	return decode[model.LoginResponse](t, w).Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

func rowIDs(p model.TablePayload) []string {
	ids := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		ids[i] = r.ID
	}
	return ids
}

func field(d model.DialogDescriptor, key string) (model.FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return model.FieldDescriptor{}, false
}

func errorCodes(errs []model.FieldError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Code
	}
	return out
}

// --- Login and session ---

func TestHandleLogin_success(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, "POST", "/ui/login", "", map[string]string{"username": "admin", "password": "admin"})
	expectStatus(t, w, 200)

	resp := decode[model.LoginResponse](t, w)
	if resp.Token == "" || resp.Role != model.RoleAdmin || resp.Username != "admin" {
		t.Errorf("login = %+v", resp)
	}
	if resp.Landing != "dashboard" {
		t.Errorf("Landing = %q, want dashboard", resp.Landing)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want in the future", resp.ExpiresAt)
	}
	if v := testutil.ToFloat64(srv.metrics.LoginsTotal.WithLabelValues("success")); v != 1 {
		t.Errorf("successful logins = %v, want 1", v)
	}
	if v := testutil.ToFloat64(srv.metrics.ActiveSessions); v != 1 {
		t.Errorf("active sessions = %v, want 1", v)
	}
}

func TestHandleLogin_rejected(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, "POST", "/ui/login", "", map[string]string{"username": "admin", "password": "nope"})
	expectStatus(t, w, 401)
	if ee := decodeError(t, w); ee.Code != model.ErrUnauthorized || ee.TraceID == "" {
		t.Errorf("error = %+v", ee)
	}

	w = srv.do(t, "POST", "/ui/login", "", map[string]string{"username": "admin"})
	expectStatus(t, w, 400)

	req := httptest.NewRequest("POST", "/ui/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, 400)

	if v := testutil.ToFloat64(srv.metrics.LoginsTotal.WithLabelValues("failure")); v != 1 {
		t.Errorf("failed logins = %v, want 1", v)
	}
}

func TestHandleLogout(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login(t, "operator", "operator")

	expectStatus(t, srv.do(t, "POST", "/ui/logout", token, nil), 200)
	if n := srv.sessions.Active(); n != 0 {
		t.Errorf("active sessions = %d, want 0", n)
	}
	expectStatus(t, srv.do(t, "GET", "/ui/navigation", token, nil), 401)
}

// --- Navigation ---

func TestHandleNavigation_byRole(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		user    string
		present []string
		absent  []string
	}{
		{"admin", []string{"orders", "clients", "devices", "employees", "settings"}, nil},
		{"operator", []string{"dashboard", "orders", "clients"}, []string{"devices", "parts", "employees", "diagnostics"}},
		{"tech", []string{"orders", "devices", "parts", "diagnostics"}, []string{"clients", "employees", "finance"}},
		{"manager", []string{"clients", "employees", "finance"}, []string{"diagnostics"}},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			token := srv.login(t, tt.user, tt.user)
			w := srv.do(t, "GET", "/ui/navigation", token, nil)
			expectStatus(t, w, 200)

			ids := make(map[string]bool)
			for _, n := range decode[model.NavigationTree](t, w).Items {
				ids[n.ID] = true
			}
			for _, id := range tt.present {
				if !ids[id] {
					t.Errorf("%s should see %q", tt.user, id)
				}
			}
			for _, id := range tt.absent {
				if ids[id] {
					t.Errorf("%s should not see %q", tt.user, id)
				}
			}
		})
	}
}

// --- Section descriptor ---

func TestHandleGetSection(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	tech := srv.login(t, "tech", "tech")

	w := srv.do(t, "GET", "/ui/sections/orders", admin, nil)
	expectStatus(t, w, 200)
	desc := decode[model.TableDescriptor](t, w)
	if desc.CreateLabel != "New order" || !desc.Searchable || !desc.RowClick {
		t.Errorf("admin descriptor = %+v", desc)
	}
	if desc.DataEndpoint != "/ui/sections/orders/rows" {
		t.Errorf("DataEndpoint = %q", desc.DataEndpoint)
	}

	w = srv.do(t, "GET", "/ui/sections/orders", tech, nil)
	expectStatus(t, w, 200)
	if desc := decode[model.TableDescriptor](t, w); desc.CreateLabel != "" {
		t.Errorf("technician should not get a create button, got %q", desc.CreateLabel)
	}
}

func TestHandleGetSection_errors(t *testing.T) {
	srv := newTestServer(t)
	tech := srv.login(t, "tech", "tech")

	expectStatus(t, srv.do(t, "GET", "/ui/sections/clients", tech, nil), 403)
	expectStatus(t, srv.do(t, "GET", "/ui/sections/nope", tech, nil), 404)
	expectStatus(t, srv.do(t, "GET", "/ui/sections/dashboard", tech, nil), 404)
}

// --- Rows and view state ---

func TestHandleGetRows(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	w := srv.do(t, "GET", "/ui/sections/orders/rows", admin, nil)
	expectStatus(t, w, 200)
	page := decode[model.TableResponse](t, w).Data
	if page.TotalCount != 4 || page.Page != 1 || page.PageSize != 10 || page.TotalPages != 1 {
		t.Errorf("page = %+v", page)
	}
	cell := page.Rows[0].Cells["id"]
	if !strings.HasPrefix(cell.Text, "#") {
		t.Errorf("order number cell = %+v, want #-prefixed", cell)
	}
	if v := testutil.ToFloat64(srv.metrics.TableQueriesTotal.WithLabelValues("orders", "rows")); v != 1 {
		t.Errorf("table queries = %v, want 1", v)
	}
}

func TestHandleGetRows_etag(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	manager := srv.login(t, "manager", "manager")
	rows := "/ui/sections/orders/rows"

	w := srv.do(t, "GET", rows, admin, nil)
	expectStatus(t, w, 200)
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("ETag = %q, want a weak validator", etag)
	}

	w = srv.do(t, "GET", rows, admin, nil, "If-None-Match", etag)
	expectStatus(t, w, http.StatusNotModified)
	if w.Body.Len() != 0 || w.Header().Get("ETag") != etag {
		t.Errorf("304 body = %q, etag = %q", w.Body.String(), w.Header().Get("ETag"))
	}
	expectStatus(t, srv.do(t, "GET", rows, admin, nil, "If-None-Match", `W/"0-x", `+etag), http.StatusNotModified)

	// Other capabilities offer other row actions.
	expectStatus(t, srv.do(t, "GET", rows, manager, nil, "If-None-Match", etag), 200)

	srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "search", "query": "kozlov"})
	w = srv.do(t, "GET", rows, admin, nil, "If-None-Match", etag)
	expectStatus(t, w, 200)
	searched := w.Header().Get("ETag")
	if searched == etag {
		t.Error("view state change should change the ETag")
	}

	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "delete", "row_id": "12347"}), 200)
	w = srv.do(t, "GET", rows, admin, nil, "If-None-Match", searched)
	expectStatus(t, w, 200)
	if w.Header().Get("ETag") == searched {
		t.Error("a store change should change the ETag")
	}
}

func TestHandleView_stateIsKeptPerSession(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	other := srv.login(t, "manager", "manager")

	w := srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "search", "query": "petrov"})
	expectStatus(t, w, 200)
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 1 || page.View.Query != "petrov" {
		t.Fatalf("search page = %+v", page)
	}

	w = srv.do(t, "GET", "/ui/sections/orders/rows", admin, nil)
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 1 {
		t.Errorf("rows after search: total = %d, want 1", page.TotalCount)
	}

	w = srv.do(t, "GET", "/ui/sections/orders/rows", other, nil)
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 4 {
		t.Errorf("another session's rows: total = %d, want 4", page.TotalCount)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "reset"})
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 4 || page.View.Query != "" {
		t.Errorf("after reset: %+v", page)
	}
}

func TestHandleView_filterAndSort(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	w := srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "filter", "key": "status", "value": "completed"})
	expectStatus(t, w, 200)
	if ids := rowIDs(decode[model.TableResponse](t, w).Data); len(ids) != 1 || ids[0] != "12348" {
		t.Errorf("completed orders = %v, want [12348]", ids)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "filter", "key": "status", "value": "all"})
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 4 {
		t.Errorf("after all: total = %d, want 4", page.TotalCount)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "sort", "key": "price"})
	page := decode[model.TableResponse](t, w).Data
	if ids := rowIDs(page); ids[0] != "12346" {
		t.Errorf("ascending by price starts with %s, want 12346", ids[0])
	}
	if page.View.SortKey != "price" || page.View.SortDir != "asc" {
		t.Errorf("view = %+v", page.View)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "sort", "key": "price"})
	if ids := rowIDs(decode[model.TableResponse](t, w).Data); ids[0] != "12347" {
		t.Errorf("descending by price starts with %s, want 12347", ids[0])
	}
}

func TestHandleView_rejectsInvalidInteractions(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	bodies := map[string]map[string]any{
		"unknown interaction": {"interaction": "shuffle"},
		"unknown filter":      {"interaction": "filter", "key": "color", "value": "red"},
		"unknown option":      {"interaction": "filter", "key": "status", "value": "lost"},
		"unsortable column":   {"interaction": "sort", "key": "problem"},
		"page size":           {"interaction": "page_size", "page_size": 7},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			w := srv.do(t, "POST", "/ui/sections/orders/view", admin, body)
			expectStatus(t, w, 400)
		})
	}
}

// --- Table actions ---

func TestHandleAction_rowClickOpensView(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	w := srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "row", "row_id": "12346"})
	expectStatus(t, w, 200)
	resp := decode[model.CommandResponse](t, w)
	if resp.Dialog == nil {
		t.Fatal("row click should open a dialog")
	}
	if resp.Dialog.Mode != "view" || !resp.Dialog.ReadOnly || resp.Dialog.RecordID != "12346" {
		t.Errorf("dialog = %+v", resp.Dialog)
	}
	if v := testutil.ToFloat64(srv.metrics.DialogsOpenedTotal.WithLabelValues("orders", "view")); v != 1 {
		t.Errorf("dialogs opened = %v, want 1", v)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/form/change", admin, map[string]any{"op": "set", "key": "clientName", "value": "X"})
	expectStatus(t, w, 400)
}

func TestHandleAction_deleteRemovesRecord(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	w := srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "delete", "row_id": "12347"})
	expectStatus(t, w, 200)
	if resp := decode[model.CommandResponse](t, w); !resp.Success || resp.Result["deleted"] != "12347" {
		t.Errorf("delete = %+v", resp)
	}

	w = srv.do(t, "GET", "/ui/sections/orders/rows", admin, nil)
	if page := decode[model.TableResponse](t, w).Data; page.TotalCount != 3 {
		t.Errorf("total after delete = %d, want 3", page.TotalCount)
	}
	if v := testutil.ToFloat64(srv.metrics.StoreRecords.WithLabelValues("orders")); v != 3 {
		t.Errorf("store gauge = %v, want 3", v)
	}
}

func TestHandleAction_rejections(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	tech := srv.login(t, "tech", "tech")

	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", tech, map[string]any{"action": "delete", "row_id": "12345"}), 403)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", tech, map[string]any{"action": "create"}), 403)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "archive", "row_id": "12345"}), 400)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "edit", "row_id": "99999"}), 400)

	// A row filtered off screen cannot be targeted.
	srv.do(t, "POST", "/ui/sections/orders/view", admin, map[string]any{"interaction": "filter", "key": "status", "value": "completed"})
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/actions", admin, map[string]any{"action": "edit", "row_id": "12345"}), 400)

	if v := testutil.ToFloat64(srv.metrics.RowActionsTotal.WithLabelValues("orders", "delete", "error")); v != 1 {
		t.Errorf("failed deletes = %v, want 1", v)
	}
}

func TestHandleAction_technicianEditHasNoDelete(t *testing.T) {
	srv := newTestServer(t)
	tech := srv.login(t, "tech", "tech")

	w := srv.do(t, "POST", "/ui/sections/orders/actions", tech, map[string]any{"action": "edit", "row_id": "12345"})
	expectStatus(t, w, 200)
	resp := decode[model.CommandResponse](t, w)
	if resp.Dialog == nil || resp.Dialog.Mode != "edit" {
		t.Fatalf("dialog = %+v", resp.Dialog)
	}
	if resp.Dialog.CanDelete {
		t.Error("technician edit dialog should not offer delete")
	}
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/delete", tech, nil), 400)
}

// --- Form dialog ---

func TestFormFlow_createClientWithValidation(t *testing.T) {
	srv := newTestServer(t)
	op := srv.login(t, "operator", "operator")

	w := srv.do(t, "POST", "/ui/sections/clients/form/open", op, map[string]any{"mode": "create"})
	expectStatus(t, w, 200)
	dlg := decode[model.DialogResponse](t, w).Data
	if dlg.Mode != "create" || !dlg.Open || dlg.SubmitLabel != "Create" {
		t.Errorf("dialog = %+v", dlg)
	}
	if _, ok := field(dlg, "totalOrders"); ok {
		t.Error("totalOrders should be hidden in create mode")
	}

	w = srv.do(t, "POST", "/ui/sections/clients/form/submit", op, nil)
	expectStatus(t, w, 200)
	resp := decode[model.CommandResponse](t, w)
	codes := errorCodes(resp.Errors)
	if resp.Success || codes["name"] != model.FieldRequired || codes["phone"] != model.FieldRequired {
		t.Fatalf("empty submit = %+v", resp)
	}
	if resp.Dialog == nil || !resp.Dialog.Open {
		t.Error("dialog should stay open after a rejected submit")
	}

	expectStatus(t, srv.do(t, "POST", "/ui/sections/clients/form/change", op, map[string]any{"op": "set", "key": "name", "value": "Oleg Ivanov"}), 200)
	w = srv.do(t, "POST", "/ui/sections/clients/form/change", op, map[string]any{"op": "text", "key": "phone", "text": "12345"})
	expectStatus(t, w, 200)
	if f, _ := field(decode[model.DialogResponse](t, w).Data, "phone"); f.Value != "12345" {
		t.Errorf("phone value = %v", f.Value)
	}

	w = srv.do(t, "POST", "/ui/sections/clients/form/submit", op, nil)
	resp = decode[model.CommandResponse](t, w)
	if resp.Success || errorCodes(resp.Errors)["phone"] != model.FieldInvalid {
		t.Fatalf("bad phone submit = %+v", resp)
	}
	if msg := resp.Errors[0].Message; msg != "Format: +7 999 123-45-67" {
		t.Errorf("phone message = %q", msg)
	}

	srv.do(t, "POST", "/ui/sections/clients/form/change", op, map[string]any{"op": "text", "key": "phone", "text": "+7 999 000-11-22"})
	w = srv.do(t, "POST", "/ui/sections/clients/form/submit", op, nil)
	expectStatus(t, w, 200)
	resp = decode[model.CommandResponse](t, w)
	if !resp.Success {
		t.Fatalf("valid submit = %+v", resp)
	}
	if id, _ := resp.Result["record_id"].(string); len(id) != 8 {
		t.Errorf("record_id = %v, want an 8-digit id", resp.Result["record_id"])
	}

	w = srv.do(t, "GET", "/ui/sections/clients/rows", op, nil)
	page := decode[model.TableResponse](t, w).Data
	if page.TotalCount != 5 || page.Rows[0].Cells["name"].Text != "Oleg Ivanov" {
		t.Errorf("new client should be listed first: %+v", page.Rows[0])
	}

	expectStatus(t, srv.do(t, "GET", "/ui/sections/clients/form", op, nil), 409)

	m := srv.metrics
	if v := testutil.ToFloat64(m.FormSubmissionsTotal.WithLabelValues("clients", "create", observability.OutcomeRejected)); v != 2 {
		t.Errorf("rejected submits = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.FormValidationFailures.WithLabelValues("clients", "phone", model.FieldInvalid)); v != 1 {
		t.Errorf("phone INVALID failures = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.StoreRecords.WithLabelValues("clients")); v != 5 {
		t.Errorf("clients gauge = %v, want 5", v)
	}
}

func TestFormFlow_idempotentCreate(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	manager := srv.login(t, "manager", "manager")

	body := map[string]any{"values": map[string]any{
		"clientName": "Pavel Orlov",
		"device":     "Dell XPS 13",
		"problem":    "Fan noise",
	}}

	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/open", admin, map[string]any{"mode": "create"}), 200)
	w := srv.do(t, "POST", "/ui/sections/orders/form/submit", admin, body, IdempotencyKeyHeader, "k-1")
	expectStatus(t, w, 200)
	first := decode[model.CommandResponse](t, w)
	if !first.Success {
		t.Fatalf("first submit = %+v", first)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/form/submit", admin, body, IdempotencyKeyHeader, "k-1")
	expectStatus(t, w, 200)
	if w.Header().Get("X-Idempotent-Replay") != "true" {
		t.Error("repeat should be marked as a replay")
	}
	if again := decode[model.CommandResponse](t, w); again.Result["record_id"] != first.Result["record_id"] {
		t.Errorf("replayed record_id = %v, want %v", again.Result["record_id"], first.Result["record_id"])
	}
	if n := len(srv.sectionRows(t, "orders")); n != 5 {
		t.Errorf("orders = %d, want 5 after a replayed submit", n)
	}

	changed := map[string]any{"values": map[string]any{"clientName": "Someone Else", "device": "X", "problem": "Y"}}
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/submit", admin, changed, IdempotencyKeyHeader, "k-1"), 409)

	// Keys are scoped per user.
	srv.do(t, "POST", "/ui/sections/orders/form/open", manager, map[string]any{"mode": "create"})
	w = srv.do(t, "POST", "/ui/sections/orders/form/submit", manager, body, IdempotencyKeyHeader, "k-1")
	expectStatus(t, w, 200)
	if w.Header().Get("X-Idempotent-Replay") != "" {
		t.Error("another user's key must not replay")
	}
	if n := len(srv.sectionRows(t, "orders")); n != 6 {
		t.Errorf("orders = %d, want 6", n)
	}
	if v := testutil.ToFloat64(srv.metrics.FormSubmissionsTotal.WithLabelValues("orders", "create", observability.OutcomeReplayed)); v != 1 {
		t.Errorf("replayed submits = %v, want 1", v)
	}
}

func (s *testServer) sectionRows(t *testing.T, id string) []model.Record {
	t.Helper()
	sec, ok := s.sections.Get(id)
	if !ok {
		t.Fatalf("section %q not loaded", id)
	}
	return sec.Rows()
}

func TestFormFlow_tagsOnEdit(t *testing.T) {
	srv := newTestServer(t)
	tech := srv.login(t, "tech", "tech")

	expectStatus(t, srv.do(t, "POST", "/ui/sections/parts/form/open", tech, map[string]any{"mode": "edit", "record_id": "1"}), 200)

	w := srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "type_tag", "key": "compatible", "text": "Air M1,"})
	expectStatus(t, w, 200)
	f, _ := field(decode[model.DialogResponse](t, w).Data, "compatible")
	if tags, _ := f.Value.([]any); len(tags) != 2 || tags[1] != "Air M1" {
		t.Errorf("tags = %v", f.Value)
	}

	expectStatus(t, srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "remove_tag", "key": "compatible", "index": 0}), 200)
	w = srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "type_tag", "key": "compatible", "text": "Air M2"})
	if f, _ := field(decode[model.DialogResponse](t, w).Data, "compatible"); f.Pending != "Air M2" {
		t.Errorf("pending = %q, want Air M2", f.Pending)
	}
	expectStatus(t, srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "commit_tag", "key": "compatible"}), 200)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "remove_tag", "key": "compatible", "index": 9}), 400)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/parts/form/change", tech, map[string]any{"op": "paint", "key": "compatible"}), 400)

	w = srv.do(t, "POST", "/ui/sections/parts/form/submit", tech, nil)
	expectStatus(t, w, 200)
	resp := decode[model.CommandResponse](t, w)
	if !resp.Success {
		t.Fatalf("submit = %+v", resp)
	}
	rec, _ := resp.Result["record"].(map[string]any)
	tags, _ := rec["compatible"].([]any)
	if len(tags) != 2 || tags[0] != "Air M1" || tags[1] != "Air M2" {
		t.Errorf("saved tags = %v", rec["compatible"])
	}
}

func TestFormFlow_deleteFromEditDialog(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	w := srv.do(t, "POST", "/ui/sections/orders/form/open", admin, map[string]any{"mode": "edit", "record_id": "12345"})
	expectStatus(t, w, 200)
	if dlg := decode[model.DialogResponse](t, w).Data; !dlg.CanDelete || dlg.DeleteLabel == "" {
		t.Errorf("admin edit dialog should offer delete: %+v", dlg)
	}

	w = srv.do(t, "POST", "/ui/sections/orders/form/delete", admin, nil)
	expectStatus(t, w, 200)
	if resp := decode[model.CommandResponse](t, w); resp.Result["deleted"] != "12345" {
		t.Errorf("delete = %+v", resp)
	}
	if n := len(srv.sectionRows(t, "orders")); n != 3 {
		t.Errorf("orders = %d, want 3", n)
	}
	expectStatus(t, srv.do(t, "GET", "/ui/sections/orders/form", admin, nil), 409)
}

func TestFormFlow_close(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	srv.do(t, "POST", "/ui/sections/devices/form/open", admin, map[string]any{"mode": "view", "record_id": "1"})
	w := srv.do(t, "GET", "/ui/sections/devices/form", admin, nil)
	expectStatus(t, w, 200)
	if dlg := decode[model.DialogResponse](t, w).Data; !dlg.Open || !dlg.ReadOnly {
		t.Errorf("dialog = %+v", dlg)
	}

	w = srv.do(t, "POST", "/ui/sections/devices/form/close", admin, nil)
	expectStatus(t, w, 200)
	if dlg := decode[model.DialogResponse](t, w).Data; dlg.Open || len(dlg.Fields) != 0 {
		t.Errorf("closed dialog = %+v", dlg)
	}
	expectStatus(t, srv.do(t, "POST", "/ui/sections/devices/form/close", admin, nil), 409)
}

func TestFormFlow_rejectedSubmitValuesLeaveDraft(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")

	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/open", admin, map[string]any{"mode": "create"}), 200)
	body := map[string]any{"values": map[string]any{"clientName": "Partial", "status": "bogus"}}
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/submit", admin, body), 400)

	w := srv.do(t, "GET", "/ui/sections/orders/form", admin, nil)
	expectStatus(t, w, 200)
	dlg := decode[model.DialogResponse](t, w).Data
	if !dlg.Open {
		t.Fatal("dialog should stay open")
	}
	if f, _ := field(dlg, "clientName"); f.Value != "" {
		t.Errorf("clientName = %#v, want the untouched draft", f.Value)
	}
	if f, _ := field(dlg, "status"); f.Value != "new" {
		t.Errorf("status = %#v, want new", f.Value)
	}
	if n := len(srv.sectionRows(t, "orders")); n != 4 {
		t.Errorf("orders = %d, want 4", n)
	}
}

func TestHandleOpenForm_errors(t *testing.T) {
	srv := newTestServer(t)
	tech := srv.login(t, "tech", "tech")

	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/open", tech, map[string]any{"mode": "create"}), 403)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/open", tech, map[string]any{"mode": "preview"}), 400)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/orders/form/open", tech, map[string]any{"mode": "edit", "record_id": "00000"}), 404)
	expectStatus(t, srv.do(t, "POST", "/ui/sections/clients/form/open", tech, map[string]any{"mode": "view", "record_id": "1"}), 403)
}

// --- Search ---

func TestHandleSearch(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login(t, "admin", "admin")
	tech := srv.login(t, "tech", "tech")

	w := srv.do(t, "GET", "/ui/search?q=ivan", admin, nil)
	expectStatus(t, w, 200)
	sections := make(map[string]bool)
	for _, r := range decode[model.SearchResponse](t, w).Data.Results {
		sections[r.Section] = true
	}
	if !sections["orders"] || !sections["clients"] {
		t.Errorf("admin search sections = %v, want orders and clients", sections)
	}

	w = srv.do(t, "GET", "/ui/search?q=ivan", tech, nil)
	expectStatus(t, w, 200)
	for _, r := range decode[model.SearchResponse](t, w).Data.Results {
		if r.Section == "clients" {
			t.Error("technician search must not reach clients")
		}
	}

	expectStatus(t, srv.do(t, "GET", "/ui/search?q=a", admin, nil), 400)
}
