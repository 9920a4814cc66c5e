package integration

import (
	"net/http"
	"slices"
	"testing"

	"github.com/pitabwire/repairdesk/model"
)

// --- Navigation ---

func TestPageLoad_NavigationByRole(t *testing.T) {
	h := NewTestHarness(t)

	tests := []struct {
		user    string
		landing string
		want    []string
	}{
		{"operator", "dashboard", []string{"dashboard", "orders", "clients", "calendar", "notifications", "knowledge"}},
		{"tech", "dashboard", []string{"dashboard", "orders", "devices", "diagnostics", "parts", "calendar", "notifications", "knowledge"}},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			var login model.LoginResponse
			h.AssertJSON(t, h.POST("/ui/login", map[string]string{"username": tt.user, "password": tt.user}, ""), http.StatusOK, &login)
			if login.Landing != tt.landing {
				t.Errorf("landing = %q, want %q", login.Landing, tt.landing)
			}

			var tree model.NavigationTree
			h.AssertJSON(t, h.GET("/ui/navigation", login.Token), http.StatusOK, &tree)
			if got := NavigationIDs(tree); !slices.Equal(got, tt.want) {
				t.Errorf("navigation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageLoad_AdminSeesEverySection(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("admin")

	var tree model.NavigationTree
	h.AssertJSON(t, h.GET("/ui/navigation", token), http.StatusOK, &tree)
	if len(tree.Items) != 14 {
		t.Fatalf("admin navigation has %d items, want 14:\n%s", len(tree.Items), FormatJSON(tree))
	}

	data := map[string]bool{}
	for _, n := range tree.Items {
		data[n.ID] = n.HasData
	}
	for _, id := range []string{"orders", "clients", "devices", "parts", "employees"} {
		if !data[id] {
			t.Errorf("%s should be a data section", id)
		}
	}
	for _, id := range []string{"dashboard", "settings", "knowledge"} {
		if data[id] {
			t.Errorf("%s should be a placeholder section", id)
		}
	}
}

// --- Section descriptor ---

func TestPageLoad_OrdersDescriptor(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("manager")

	var desc model.TableDescriptor
	h.AssertJSON(t, h.GET("/ui/sections/orders", token), http.StatusOK, &desc)

	if desc.Title != "Orders" || desc.CreateLabel != "New order" || desc.EmptyMessage != "No orders found" {
		t.Errorf("descriptor = %s", FormatJSON(desc))
	}
	if !slices.Equal(desc.PageSizes, []int{10, 25, 50, 100}) {
		t.Errorf("page sizes = %v", desc.PageSizes)
	}
	if len(desc.Columns) != 8 || desc.Columns[0].Key != "id" || desc.Columns[3].Sortable {
		t.Errorf("columns = %s", FormatJSON(desc.Columns))
	}

	if len(desc.Filters) != 2 {
		t.Fatalf("filters = %s", FormatJSON(desc.Filters))
	}
	status := desc.Filters[0]
	if status.Key != "status" || len(status.Options) != 5 || status.Options[0].Value != "all" || status.Options[0].Label != "All" {
		t.Errorf("status filter = %s", FormatJSON(status))
	}

	var ids []string
	for _, a := range desc.Actions {
		ids = append(ids, a.ID)
	}
	if !slices.Equal(ids, []string{"create", "edit", "delete"}) {
		t.Errorf("actions = %v", ids)
	}
	if del := desc.Actions[2]; del.Confirmation == nil || del.Confirmation.Confirm != "Delete" {
		t.Errorf("delete action should carry its confirmation: %s", FormatJSON(del))
	}
}

func TestPageLoad_PlaceholderSectionsHaveNoTable(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("admin")

	for _, id := range []string{"dashboard", "calendar", "settings"} {
		t.Run(id, func(t *testing.T) {
			h.AssertError(t, h.GET("/ui/sections/"+id+"/rows", token), http.StatusNotFound, model.ErrNotFound)
		})
	}
}

// --- Rows ---

func TestPageLoad_OrderRowsRendered(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("admin")

	page := h.Rows("orders", token)
	if !slices.Equal(RowIDs(page), []string{"12345", "12346", "12347", "12348"}) {
		t.Fatalf("rows = %v", RowIDs(page))
	}

	cells := page.Rows[0].Cells
	if got := cells["id"].Text; got != "#12345" {
		t.Errorf("number cell = %q", got)
	}
	if st := cells["status"]; st.Kind != "badge" || st.Text != "In progress" || st.Tone != "yellow" {
		t.Errorf("status cell = %+v", st)
	}
	if got := cells["price"].Text; got != "₽5,000" {
		t.Errorf("price cell = %q", got)
	}
	if got := cells["createdAt"].Text; got != "10 Jan 2024" {
		t.Errorf("date cell = %q", got)
	}
}

func TestPageLoad_ViewInteractions(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("admin")

	page := h.View("orders", token, map[string]any{"interaction": "filter", "key": "priority", "value": "medium"})
	if !slices.Equal(RowIDs(page), []string{"12346", "12348"}) {
		t.Errorf("medium priority = %v", RowIDs(page))
	}

	page = h.View("orders", token, map[string]any{"interaction": "sort", "key": "createdAt"})
	if !slices.Equal(RowIDs(page), []string{"12348", "12346"}) {
		t.Errorf("sorted by date = %v", RowIDs(page))
	}

	page = h.View("orders", token, map[string]any{"interaction": "search", "query": "zzz"})
	if !page.Empty || page.EmptyMessage != "No orders found" || page.TotalPages != 1 || page.Page != 1 {
		t.Errorf("empty page = %s", FormatJSON(page))
	}

	page = h.View("orders", token, map[string]any{"interaction": "clear_filters"})
	if page.TotalCount != 0 || page.View.Query != "zzz" {
		t.Errorf("clearing filters should keep the query: %s", FormatJSON(page.View))
	}

	page = h.View("orders", token, map[string]any{"interaction": "reset"})
	if page.TotalCount != 4 || page.View.SortKey != "" || len(page.View.Filters) != 0 {
		t.Errorf("after reset = %s", FormatJSON(page.View))
	}
}

func TestPageLoad_Paging(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("admin")

	page := h.View("orders", token, map[string]any{"interaction": "page_size", "page_size": 25})
	if page.PageSize != 25 || page.TotalPages != 1 {
		t.Errorf("page = %+v", page)
	}

	page = h.View("orders", token, map[string]any{"interaction": "page", "page": 7})
	if page.Page != 1 || len(page.Rows) != 4 {
		t.Errorf("out of range page should clamp: page %d with %d rows", page.Page, len(page.Rows))
	}

	// The page size survives the next plain rows request.
	if got := h.Rows("orders", token).PageSize; got != 25 {
		t.Errorf("page size after reload = %d, want 25", got)
	}
}

func TestPageLoad_NotFoundAndForbidden(t *testing.T) {
	h := NewTestHarness(t)
	op := h.LoginAs("operator")

	h.AssertError(t, h.GET("/ui/sections/missing", op), http.StatusNotFound, model.ErrNotFound)
	h.AssertError(t, h.GET("/ui/sections/employees", op), http.StatusForbidden, model.ErrForbidden)
	h.AssertError(t, h.GET("/ui/sections/parts/rows", op), http.StatusForbidden, model.ErrForbidden)
}

// --- Search ---

func TestPageLoad_GlobalSearch(t *testing.T) {
	h := NewTestHarness(t)
	token := h.LoginAs("manager")

	var found model.SearchResponse
	h.AssertJSON(t, h.GET("/ui/search?q=macbook", token), http.StatusOK, &found)
	sections := map[string]bool{}
	for _, r := range found.Data.Results {
		sections[r.Section] = true
		if r.Route == "" {
			t.Errorf("result %s/%s has no route", r.Section, r.ID)
		}
	}
	if !sections["orders"] || !sections["parts"] {
		t.Errorf("search for macbook hit %v, want orders and parts", sections)
	}

	h.AssertError(t, h.GET("/ui/search?q=m", token), http.StatusBadRequest, model.ErrBadRequest)

	h.AssertJSON(t, h.GET("/ui/search?q=macbook&section=orders", token), http.StatusOK, &found)
	for _, r := range found.Data.Results {
		if r.Section != "orders" {
			t.Errorf("section filter leaked %s", r.Section)
		}
	}
}
