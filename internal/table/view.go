package table

import (
	"fmt"
	"maps"
	"slices"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// View is the interaction state of one table instance: search text, active
// filters, sort key and direction, current page, and page size. A View is
// not safe for concurrent use; callers serialize access per user.
type View struct {
	source   string
	table    *Table
	query    string
	filters  map[string]string
	sortKey  string
	sortDir  Direction
	page     int
	pageSize int
}

// NewView returns a fresh view bound to t. source identifies the collection
// the view lists.
func (t *Table) NewView(source string) *View {
	v := &View{}
	v.reset(t, source)
	return v
}

func (v *View) reset(t *Table, source string) {
	v.source = source
	v.table = t
	v.query = ""
	v.filters = make(map[string]string)
	v.sortKey = ""
	v.sortDir = ""
	v.page = 1
	v.pageSize = t.pageSizes[0]
}

// Bind points the view at table t listing collection source. When source
// differs from the collection the view was listing, every piece of state is
// reset. Otherwise the state is kept and only entries that t no longer
// supports are dropped.
func (v *View) Bind(t *Table, source string) {
	if v.table == nil || v.source != source {
		v.reset(t, source)
		return
	}
	v.attach(t)
}

// attach revalidates the view against t.
func (v *View) attach(t *Table) {
	switch v.table {
	case t:
		return
	case nil:
		v.reset(t, v.source)
		return
	}
	v.table = t
	if v.sortKey != "" {
		if i, ok := t.byKey[v.sortKey]; !ok || !t.columns[i].Sortable {
			v.sortKey, v.sortDir = "", ""
		}
	}
	for key, value := range v.filters {
		f, ok := t.filter(key)
		if !ok || !f.hasOption(value) {
			delete(v.filters, key)
		}
	}
	if !slices.Contains(t.pageSizes, v.pageSize) {
		v.pageSize = t.pageSizes[0]
		v.page = 1
	}
}

// Source returns the identity of the collection the view lists.
func (v *View) Source() string { return v.source }

// Query returns the current search text.
func (v *View) Query() string { return v.query }

// Filters returns a copy of the active filters.
func (v *View) Filters() map[string]string { return maps.Clone(v.filters) }

// Sort returns the sort key and direction; an empty key means input order.
func (v *View) Sort() (string, Direction) { return v.sortKey, v.sortDir }

// Page returns the current 1-based page. It reflects the last clamp done by
// Table.Apply.
func (v *View) Page() int { return v.page }

// PageSize returns the number of rows per page.
func (v *View) PageSize() int { return v.pageSize }

// SetQuery replaces the search text and returns to the first page.
func (v *View) SetQuery(q string) {
	v.query = q
	v.page = 1
}

// SetFilter restricts key to value and returns to the first page. The value
// AllValue, or the empty string, lifts the restriction.
func (v *View) SetFilter(key, value string) error {
	f, ok := v.table.filter(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, key)
	}
	switch {
	case value == AllValue || value == "":
		delete(v.filters, key)
	case f.hasOption(value):
		v.filters[key] = value
	default:
		return fmt.Errorf("%w: %q=%q", ErrUnknownOption, key, value)
	}
	v.page = 1
	return nil
}

// ClearFilters lifts every filter and returns to the first page.
func (v *View) ClearFilters() {
	clear(v.filters)
	v.page = 1
}

// ToggleSort handles a click on a column header. A column other than the
// current sort key becomes the sort key, ascending; the current sort key
// flips direction. There is no way back to input order.
func (v *View) ToggleSort(key string) error {
	i, ok := v.table.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, key)
	}
	if !v.table.columns[i].Sortable {
		return fmt.Errorf("%w: %q", ErrNotSortable, key)
	}
	if v.sortKey == key {
		if v.sortDir == Ascending {
			v.sortDir = Descending
		} else {
			v.sortDir = Ascending
		}
		return nil
	}
	v.sortKey = key
	v.sortDir = Ascending
	return nil
}

// SetPage moves to page n. Out-of-range pages are clamped by the next
// Table.Apply.
func (v *View) SetPage(n int) {
	v.page = max(n, 1)
}

// SetPageSize changes the rows per page to one of the offered sizes and
// returns to the first page.
func (v *View) SetPageSize(n int) error {
	if !slices.Contains(v.table.pageSizes, n) {
		return fmt.Errorf("%w: %d", ErrPageSize, n)
	}
	v.pageSize = n
	v.page = 1
	return nil
}

// Reset restores the initial state for the current collection.
func (v *View) Reset() {
	v.reset(v.table, v.source)
}

func (t *Table) filter(key string) (Filter, bool) {
	for _, f := range t.filters {
		if f.Key == key {
			return f, true
		}
	}
	return Filter{}, false
}
