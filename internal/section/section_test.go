package section

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

type memDesk map[string]*Editor

func (d memDesk) Editor(section string) *Editor       { return d[section] }
func (d memDesk) SetEditor(section string, e *Editor) { d[section] = e }

var (
	allCaps    = model.CapabilitySet{"*": true}
	viewOnly   = model.CapabilitySet{"orders:view": true}
	editNoDrop = model.CapabilitySet{"orders:view": true, "orders:edit": true, "orders:create": true}
)

func testCatalog() *Catalog {
	c := NewCatalog(language.English)
	c.SetClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
	return c
}

func loadSections(t *testing.T) *Registry {
	t.Helper()
	defs, err := definition.NewLoader().LoadFS(definition.Embedded())
	if err != nil {
		t.Fatalf("LoadFS() error: %v", err)
	}
	r, err := Load(definition.NewRegistry(defs), testCatalog(), Options{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return r
}

func mustSection(t *testing.T, r *Registry, id string) *Section {
	t.Helper()
	s, ok := r.Get(id)
	if !ok {
		t.Fatalf("section %q not found", id)
	}
	return s
}

func TestLoad_embeddedSections(t *testing.T) {
	r := loadSections(t)
	if got := len(r.All()); got != 14 {
		t.Fatalf("sections = %d, want 14", got)
	}
	if first := r.All()[0].ID(); first != "dashboard" {
		t.Errorf("first section = %q, want dashboard", first)
	}
	sizes := r.Stores().Sizes()
	for _, id := range []string{"orders", "clients", "devices", "parts", "employees"} {
		if sizes[id] != 4 {
			t.Errorf("%s store size = %d, want 4", id, sizes[id])
		}
	}
	if mustSection(t, r, "calendar").HasData() {
		t.Error("calendar should be navigation-only")
	}
}

func TestRegistry_Visible(t *testing.T) {
	r := loadSections(t)
	caps := model.CapabilitySet{"orders:view": true, "dashboard:view": true}
	var ids []string
	for _, s := range r.Visible(caps) {
		ids = append(ids, s.ID())
	}
	if len(ids) != 2 || ids[0] != "dashboard" || ids[1] != "orders" {
		t.Errorf("Visible() = %v, want [dashboard orders]", ids)
	}
}

func TestHandlers_followCapabilities(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	tests := []struct {
		name string
		caps model.CapabilitySet
		want table.Affordances
	}{
		{"admin", allCaps, table.Affordances{RowClick: true, Edit: true, Delete: true, Create: true}},
		{"view only", viewOnly, table.Affordances{RowClick: true}},
		{"no delete", editNoDrop, table.Affordances{RowClick: true, Edit: true, Create: true}},
		{"hidden", model.CapabilitySet{}, table.Affordances{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orders.Bound(memDesk{}, tt.caps).Affordances()
			if got != tt.want {
				t.Errorf("Affordances() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDispatch_rowClickOpensView(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	desk := memDesk{}
	v := orders.Table().NewView("orders")

	err := orders.Dispatch(context.Background(), desk, viewOnly, v, table.Target{Kind: table.TargetRow, RowID: "12346"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	e, err := orders.OpenEditor(desk)
	if err != nil {
		t.Fatalf("OpenEditor error: %v", err)
	}
	if e.Mode() != form.ModeView || e.RecordID() != "12346" || e.Title() != "Order details" {
		t.Errorf("editor = mode %q record %q title %q", e.Mode(), e.RecordID(), e.Title())
	}
	if e.Value("clientName") != "Maria Sidorova" {
		t.Errorf("clientName = %v", e.Value("clientName"))
	}
	res, _ := e.Submit(context.Background())
	if res.Outcome != form.OutcomeDismissed {
		t.Errorf("Outcome = %q, want dismissed", res.Outcome)
	}
}

func TestDispatch_rowOutsidePage(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	v := orders.Table().NewView("orders")
	v.SetQuery("Ivan")

	err := orders.Dispatch(context.Background(), memDesk{}, allCaps, v, table.Target{Kind: table.TargetEdit, RowID: "12346"})
	if !errors.Is(err, table.ErrRowNotFound) {
		t.Errorf("Dispatch error = %v, want ErrRowNotFound", err)
	}
}

func TestCreate_generatesIDAndPrepends(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	desk := memDesk{}
	v := orders.Table().NewView("orders")

	if err := orders.Dispatch(context.Background(), desk, allCaps, v, table.Target{Kind: table.TargetCreate}); err != nil {
		t.Fatalf("Dispatch(create) error: %v", err)
	}
	e, _ := orders.OpenEditor(desk)
	if e.Mode() != form.ModeCreate {
		t.Fatalf("mode = %q, want create", e.Mode())
	}
	for _, fv := range e.Render() {
		if fv.Key == "id" {
			t.Error("id field shown in create mode")
		}
	}
	if e.Value("createdAt") != "2024-03-01" || e.Value("status") != "new" {
		t.Errorf("defaults: createdAt=%v status=%v", e.Value("createdAt"), e.Value("status"))
	}

	res, err := e.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Accepted() || len(res.Errors) != 3 {
		t.Fatalf("Submit accepted = %v, errors = %v; want 3 required errors", res.Accepted(), res.Errors)
	}

	_ = e.SetText("clientName", "Olga Ivanova")
	_ = e.SetText("device", "Pixel 7")
	_ = e.SetText("problem", "Battery drains")
	_ = e.SetText("price", "1500")
	res, err = e.Submit(context.Background())
	if err != nil || !res.Accepted() {
		t.Fatalf("Submit = %+v, %v", res, err)
	}

	saved := e.Saved()
	if !regexp.MustCompile(`^\d{5}$`).MatchString(saved.ID("id")) {
		t.Errorf("generated id = %q, want 5 digits", saved.ID("id"))
	}
	rows := orders.Rows()
	if len(rows) != 5 || rows[0].ID("id") != saved.ID("id") {
		t.Errorf("new order not first: %v", rows[0])
	}
	if rows[0]["price"] != 1500.0 {
		t.Errorf("price = %#v, want 1500", rows[0]["price"])
	}
}

func TestEdit_mergesIntoStore(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	desk := memDesk{}
	e, err := orders.OpenDialog(context.Background(), desk, allCaps, form.ModeEdit, "12345")
	if err != nil {
		t.Fatalf("OpenDialog error: %v", err)
	}
	if err := e.SetValue("status", "completed"); err != nil {
		t.Fatalf("SetValue error: %v", err)
	}
	if err := e.SetText("id", "99999"); !errors.Is(err, form.ErrDisabled) {
		t.Errorf("SetText(id) error = %v, want ErrDisabled", err)
	}
	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	rec, err := orders.Store().Get(context.Background(), "12345")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec["status"] != "completed" || rec["clientName"] != "Ivan Petrov" {
		t.Errorf("stored = %v", rec)
	}
	if orders.Rows()[0].ID("id") != "12345" {
		t.Error("edit moved the record")
	}
}

func TestEdit_deleteNeedsCapability(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")

	e, _ := orders.OpenDialog(context.Background(), memDesk{}, editNoDrop, form.ModeEdit, "12345")
	if e.CanDelete() {
		t.Error("CanDelete() = true without orders:delete")
	}

	e, _ = orders.OpenDialog(context.Background(), memDesk{}, allCaps, form.ModeEdit, "12345")
	if !e.CanDelete() {
		t.Fatal("CanDelete() = false for admin")
	}
	if err := e.Delete(context.Background()); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if orders.Store().Len() != 3 {
		t.Errorf("store size = %d, want 3", orders.Store().Len())
	}
}

func TestDispatch_deleteClosesDialogShowingRow(t *testing.T) {
	orders := mustSection(t, loadSections(t), "orders")
	desk := memDesk{}
	e, _ := orders.OpenDialog(context.Background(), desk, allCaps, form.ModeView, "12347")

	v := orders.Table().NewView("orders")
	if err := orders.Dispatch(context.Background(), desk, allCaps, v, table.Target{Kind: table.TargetDelete, RowID: "12347"}); err != nil {
		t.Fatalf("Dispatch(delete) error: %v", err)
	}
	if e.IsOpen() {
		t.Error("dialog for deleted record still open")
	}
	if _, err := orders.Store().Get(context.Background(), "12347"); err == nil {
		t.Error("record still stored")
	}
}

func TestOpenDialog_errors(t *testing.T) {
	r := loadSections(t)
	orders := mustSection(t, r, "orders")
	ctx := context.Background()

	if _, err := orders.OpenDialog(ctx, memDesk{}, viewOnly, form.ModeCreate, ""); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("create without capability error = %v, want ErrNotAllowed", err)
	}
	if _, err := orders.OpenDialog(ctx, memDesk{}, allCaps, "archive", ""); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("unknown mode error = %v, want ErrUnknownMode", err)
	}
	_, err := orders.OpenDialog(ctx, memDesk{}, allCaps, form.ModeEdit, "00000")
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrNotFound {
		t.Errorf("missing record error = %v, want NOT_FOUND", err)
	}
	if _, err := mustSection(t, r, "calendar").OpenDialog(ctx, memDesk{}, allCaps, form.ModeView, "1"); !errors.Is(err, ErrNoData) {
		t.Errorf("navigation-only error = %v, want ErrNoData", err)
	}
	if _, err := orders.OpenEditor(memDesk{}); !errors.Is(err, ErrNoDialog) {
		t.Errorf("OpenEditor error = %v, want ErrNoDialog", err)
	}
}

func TestClients_phonePattern(t *testing.T) {
	clients := mustSection(t, loadSections(t), "clients")
	e, err := clients.OpenDialog(context.Background(), memDesk{}, allCaps, form.ModeCreate, "")
	if err != nil {
		t.Fatalf("OpenDialog error: %v", err)
	}
	_ = e.SetText("name", "Test")
	_ = e.SetText("phone", "89991234567")
	_ = e.SetText("email", "not-an-email")
	_, _ = e.Submit(context.Background())

	if fe, _ := e.Error("phone"); fe.Message != "Format: +7 999 123-45-67" {
		t.Errorf("phone error = %+v", fe)
	}
	if fe, _ := e.Error("email"); fe.Code != model.FieldInvalid {
		t.Errorf("email error = %+v", fe)
	}

	_ = e.SetText("phone", "+7 999 123-45-67")
	_ = e.SetText("email", "test@example.com")
	res, err := e.Submit(context.Background())
	if err != nil || !res.Accepted() {
		t.Fatalf("Submit = %+v, %v", res, err)
	}
}

func TestParts_tagsAndDefaults(t *testing.T) {
	parts := mustSection(t, loadSections(t), "parts")
	e, err := parts.OpenDialog(context.Background(), memDesk{}, allCaps, form.ModeCreate, "")
	if err != nil {
		t.Fatalf("OpenDialog error: %v", err)
	}
	if e.Value("stock") != 0 || e.Value("minStock") != 1 {
		t.Errorf("stock defaults = %v/%v, want 0/1", e.Value("stock"), e.Value("minStock"))
	}
	_, _ = e.TypeTag("compatible", "ThinkPad T14,")
	if tags, _ := e.Value("compatible").([]string); len(tags) != 1 || tags[0] != "ThinkPad T14" {
		t.Errorf("compatible = %#v", e.Value("compatible"))
	}
	_ = e.SetText("name", "Fan")
	_ = e.SetText("brand", "Lenovo")
	_ = e.SetText("price", "900")
	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if !regexp.MustCompile(`^P-[0-9A-F]{6}$`).MatchString(e.Saved().ID("id")) {
		t.Errorf("part id = %q", e.Saved().ID("id"))
	}
}
