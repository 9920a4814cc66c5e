// Package table implements a searchable, filterable, sortable, paginated view
// over a caller-supplied collection of records. The engine never mutates the
// collection; row and create actions are reported through caller handlers.
package table

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/pitabwire/repairdesk/model"
)

// AllValue is the filter sentinel meaning "no restriction on this key".
const AllValue = "all"

// DefaultPageSizes are offered when a table declares none.
var DefaultPageSizes = []int{10, 25, 50, 100}

// Engine errors. They are wrapped with the offending key.
var (
	ErrUnknownColumn = errors.New("table: unknown column")
	ErrNotSortable   = errors.New("table: column is not sortable")
	ErrUnknownFilter = errors.New("table: unknown filter")
	ErrUnknownOption = errors.New("table: unknown filter option")
	ErrPageSize      = errors.New("table: page size not offered")
	ErrRowNotFound   = errors.New("table: row not displayed")
	ErrNoHandler     = errors.New("table: action not available")
)

// Column describes one table column.
type Column struct {
	Key      string
	Label    string
	Sortable bool
	Width    string
	Render   RenderFunc
}

// Option is a selectable filter value.
type Option struct {
	Value string
	Label string
}

// Filter describes an exact-match restriction on one key.
type Filter struct {
	Key     string
	Label   string
	Options []Option
}

func (f Filter) hasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// RowHandler reacts to an action on a single row.
type RowHandler func(ctx context.Context, row model.Record) error

// Handlers are the caller's reactions to row clicks and actions. A nil
// handler means the corresponding affordance is not offered.
type Handlers struct {
	RowClick RowHandler
	Edit     RowHandler
	Delete   RowHandler
	Create   func(ctx context.Context) error
}

// Config configures a Table.
type Config struct {
	Columns      []Column
	SearchKeys   []string
	Filters      []Filter
	Handlers     Handlers
	IDField      string
	CreateLabel  string
	EmptyMessage string
	PageSizes    []int
	Locale       language.Tag
	Labels       Labels
}

// Table holds the static configuration of a table. It is safe for
// concurrent use; per-user state lives in View.
type Table struct {
	columns      []Column
	byKey        map[string]int
	searchKeys   []string
	filters      []Filter
	handlers     Handlers
	idField      string
	createLabel  string
	emptyMessage string
	pageSizes    []int
	labels       Labels
	collators    *sync.Pool
}

// New validates cfg and returns a Table.
func New(cfg Config) (*Table, error) {
	if len(cfg.Columns) == 0 {
		return nil, errors.New("table: at least one column is required")
	}
	t := &Table{
		byKey:        make(map[string]int, len(cfg.Columns)),
		searchKeys:   slices.Clone(cfg.SearchKeys),
		idField:      cmp.Or(cfg.IDField, model.DefaultIDField),
		createLabel:  cmp.Or(cfg.CreateLabel, "Create"),
		emptyMessage: cmp.Or(cfg.EmptyMessage, "No data"),
		handlers:     cfg.Handlers,
		labels:       cfg.Labels.withDefaults(),
	}
	for i, c := range cfg.Columns {
		if c.Key == "" {
			return nil, fmt.Errorf("table: column %d has no key", i)
		}
		if _, dup := t.byKey[c.Key]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c.Key)
		}
		t.byKey[c.Key] = i
		t.columns = append(t.columns, c)
	}

	seen := make(map[string]bool, len(cfg.Filters))
	for _, f := range cfg.Filters {
		if f.Key == "" {
			return nil, errors.New("table: filter has no key")
		}
		if seen[f.Key] {
			return nil, fmt.Errorf("table: duplicate filter %q", f.Key)
		}
		seen[f.Key] = true
		if f.hasOption(AllValue) {
			return nil, fmt.Errorf("table: filter %q uses reserved option %q", f.Key, AllValue)
		}
		t.filters = append(t.filters, Filter{Key: f.Key, Label: f.Label, Options: slices.Clone(f.Options)})
	}

	sizes := cfg.PageSizes
	if len(sizes) == 0 {
		sizes = DefaultPageSizes
	}
	for _, n := range sizes {
		if n <= 0 {
			return nil, fmt.Errorf("table: invalid page size %d", n)
		}
	}
	t.pageSizes = slices.Clone(sizes)
	slices.Sort(t.pageSizes)
	t.pageSizes = slices.Compact(t.pageSizes)

	locale := cfg.Locale
	if locale == language.Und {
		locale = language.English
	}
	t.collators = &sync.Pool{New: func() any { return collate.New(locale) }}
	return t, nil
}

// WithHandlers returns a copy of t that reports actions to h. The copy
// shares the immutable configuration of t.
func (t *Table) WithHandlers(h Handlers) *Table {
	cp := *t
	cp.handlers = h
	return &cp
}

// Columns returns the column descriptors in display order.
func (t *Table) Columns() []Column { return slices.Clone(t.columns) }

// Filters returns the filter descriptors.
func (t *Table) Filters() []Filter { return slices.Clone(t.filters) }

// SearchKeys returns the keys eligible for free-text search.
func (t *Table) SearchKeys() []string { return slices.Clone(t.searchKeys) }

// Searchable reports whether the table offers a search box.
func (t *Table) Searchable() bool { return len(t.searchKeys) > 0 }

// PageSizes returns the offered page sizes in ascending order.
func (t *Table) PageSizes() []int { return slices.Clone(t.pageSizes) }

// CreateLabel returns the label of the create button.
func (t *Table) CreateLabel() string { return t.createLabel }

// EmptyMessage returns the message shown when no rows match.
func (t *Table) EmptyMessage() string { return t.emptyMessage }

// IDField returns the record field used as the row key.
func (t *Table) IDField() string { return t.idField }

// Affordances reports which actions the current handlers offer.
func (t *Table) Affordances() Affordances {
	return Affordances{
		RowClick: t.handlers.RowClick != nil,
		Edit:     t.handlers.Edit != nil,
		Delete:   t.handlers.Delete != nil,
		Create:   t.handlers.Create != nil,
	}
}

// Affordances lists the interactive controls a table shows.
type Affordances struct {
	RowClick bool
	Edit     bool
	Delete   bool
	Create   bool
}

// Page is one derived page of a table.
type Page struct {
	Rows       []model.Record
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Empty reports whether no row matched the current search and filters.
func (p Page) Empty() bool { return p.Total == 0 }

// Apply derives the page of rows shown under v: search, then filters, then
// sort, then pagination. It clamps v's current page into the valid range.
// An empty result is still one (empty) page. rows is never modified.
func (t *Table) Apply(rows []model.Record, v *View) Page {
	v.attach(t)
	matched := t.match(rows, v)
	t.sort(matched, v)

	size := v.pageSize
	total := len(matched)
	pages := max((total+size-1)/size, 1)
	v.page = min(max(v.page, 1), pages)

	start := min((v.page-1)*size, total)
	end := min(start+size, total)
	return Page{
		Rows:       matched[start:end:end],
		Total:      total,
		Page:       v.page,
		PageSize:   size,
		TotalPages: pages,
	}
}

// match returns the rows passing the search query and every active filter,
// in input order.
func (t *Table) match(rows []model.Record, v *View) []model.Record {
	query := strings.ToLower(v.query)
	searching := query != "" && len(t.searchKeys) > 0

	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		if searching && !t.matchesQuery(row, query) {
			continue
		}
		if !matchesFilters(row, v.filters) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Search returns the rows whose search keys contain query, ignoring case and
// any view state. A table without search keys matches nothing.
func (t *Table) Search(rows []model.Record, query string) []model.Record {
	lowered := strings.ToLower(strings.TrimSpace(query))
	if lowered == "" || len(t.searchKeys) == 0 {
		return nil
	}
	var out []model.Record
	for _, row := range rows {
		if t.matchesQuery(row, lowered) {
			out = append(out, row)
		}
	}
	return out
}

func (t *Table) matchesQuery(row model.Record, lowered string) bool {
	for _, key := range t.searchKeys {
		if strings.Contains(strings.ToLower(Stringify(row[key])), lowered) {
			return true
		}
	}
	return false
}

func matchesFilters(row model.Record, filters map[string]string) bool {
	for key, want := range filters {
		if Stringify(row[key]) != want {
			return false
		}
	}
	return true
}

func (t *Table) sort(rows []model.Record, v *View) {
	if v.sortKey == "" {
		return
	}
	col := t.collators.Get().(*collate.Collator)
	defer t.collators.Put(col)

	key := v.sortKey
	sign := 1
	if v.sortDir == Descending {
		sign = -1
	}
	slices.SortStableFunc(rows, func(a, b model.Record) int {
		return sign * compareValues(col, a[key], b[key])
	})
}

// compareValues orders two cell values: numerically when both are numbers,
// otherwise as lower-cased strings under the collator.
func compareValues(col *collate.Collator, a, b any) int {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return cmp.Compare(x, y)
		}
	}
	return col.CompareString(strings.ToLower(Stringify(a)), strings.ToLower(Stringify(b)))
}
