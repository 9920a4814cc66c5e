// Package section turns section definitions into working business sections:
// a table over the section's store, a record dialog per mode, and the
// handlers that connect clicks in one to the other.
package section

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/store"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// Section errors.
var (
	ErrNoData      = errors.New("section: section has no records")
	ErrNoDialog    = errors.New("section: no dialog is open")
	ErrNotAllowed  = errors.New("section: action not allowed")
	ErrUnknownMode = errors.New("section: mode not available")
)

// Options tune how sections are built.
type Options struct {
	Locale    language.Tag
	PageSizes []int
}

// Section is one business section. Navigation-only sections have no table,
// store, or dialog.
type Section struct {
	def     model.SectionDefinition
	table   *table.Table
	store   *store.Collection
	fields  map[form.Mode][]form.Field
	actions map[string]model.ActionDefinition
}

// Build assembles a section from its definition. coll may be nil for
// navigation-only sections.
func Build(def model.SectionDefinition, catalog *Catalog, coll *store.Collection, opts Options) (*Section, error) {
	s := &Section{def: def, store: coll, actions: make(map[string]model.ActionDefinition)}
	if !def.HasData() {
		return s, nil
	}
	if coll == nil {
		return nil, fmt.Errorf("section %q: no store", def.Section)
	}

	tbl, err := buildTable(def, catalog, opts)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", def.Section, err)
	}
	s.table = tbl

	for _, a := range def.Table.Actions {
		s.actions[a.ID] = a
	}

	if def.Form != nil {
		s.fields = make(map[form.Mode][]form.Field, 3)
		for _, mode := range []form.Mode{form.ModeCreate, form.ModeEdit, form.ModeView} {
			fields, err := buildFields(def.Form.Fields, mode, catalog)
			if err != nil {
				return nil, fmt.Errorf("section %q: %w", def.Section, err)
			}
			s.fields[mode] = fields
		}
	}
	return s, nil
}

func buildTable(def model.SectionDefinition, catalog *Catalog, opts Options) (*table.Table, error) {
	td := def.Table
	cfg := table.Config{
		SearchKeys:   td.SearchKeys,
		IDField:      def.Entity.IDField,
		CreateLabel:  td.CreateLabel,
		EmptyMessage: td.EmptyMessage,
		PageSizes:    td.PageSizes,
		Locale:       opts.Locale,
	}
	if len(cfg.PageSizes) == 0 {
		cfg.PageSizes = opts.PageSizes
	}
	for _, cd := range td.Columns {
		render, err := catalog.renderer(cd)
		if err != nil {
			return nil, err
		}
		cfg.Columns = append(cfg.Columns, table.Column{
			Key:      cd.Key,
			Label:    cd.Label,
			Sortable: cd.Sortable,
			Width:    cd.Width,
			Render:   render,
		})
	}
	for _, fd := range td.Filters {
		f := table.Filter{Key: fd.Key, Label: fd.Label}
		for _, o := range fd.Options {
			f.Options = append(f.Options, table.Option{Value: o.Value, Label: o.Label})
		}
		cfg.Filters = append(cfg.Filters, f)
	}
	return table.New(cfg)
}

// buildFields converts field definitions into form fields for one mode.
// Fields listed as hidden in the mode stay in the draft but are not shown
// or validated.
func buildFields(defs []model.FieldDefinition, mode form.Mode, catalog *Catalog) ([]form.Field, error) {
	fields := make([]form.Field, 0, len(defs))
	for _, fd := range defs {
		kind, err := form.ParseKind(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Key, err)
		}
		validate, err := catalog.validator(fd)
		if err != nil {
			return nil, err
		}
		widget, err := catalog.widget(fd)
		if err != nil {
			return nil, err
		}

		f := form.Field{
			Key:         fd.Key,
			Label:       fd.Label,
			Kind:        kind,
			Placeholder: fd.Placeholder,
			Required:    fd.Required,
			Min:         fd.Min,
			Max:         fd.Max,
			Rows:        fd.Rows,
			Disabled:    fd.Disabled,
			Hidden:      fd.Hidden || slices.Contains(fd.HiddenIn, string(mode)),
			Validate:    validate,
			Render:      widget,
		}
		for _, o := range fd.Options {
			f.Options = append(f.Options, form.Option{Value: o.Value, Label: o.Label})
		}
		if token, ok := fd.Default.(string); ok && token == TodayToken {
			f.DefaultFunc = func() any { return catalog.now().Format(time.DateOnly) }
		} else {
			f.Default = fd.Default
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ID returns the section identifier.
func (s *Section) ID() string { return s.def.Section }

// Definition returns the definition the section was built from.
func (s *Section) Definition() model.SectionDefinition { return s.def }

// HasData reports whether the section lists records.
func (s *Section) HasData() bool { return s.table != nil }

// Table returns the section's table without handlers.
func (s *Section) Table() *table.Table { return s.table }

// Store returns the section's record store.
func (s *Section) Store() *store.Collection { return s.store }

// Rows returns a snapshot of the section's records.
func (s *Section) Rows() []model.Record {
	if s.store == nil {
		return nil
	}
	return s.store.All()
}

// Visible reports whether caps allow listing the section.
func (s *Section) Visible(caps model.CapabilitySet) bool {
	return caps.HasAll(s.def.Navigation.Capabilities...)
}

// Allowed reports whether caps grant the table action id. Actions the
// definition does not declare are never allowed.
func (s *Section) Allowed(id string, caps model.CapabilitySet) bool {
	a, ok := s.actions[id]
	return ok && s.Visible(caps) && caps.HasAll(a.Capabilities...)
}

// Action returns the definition of a declared table action.
func (s *Section) Action(id string) (model.ActionDefinition, bool) {
	a, ok := s.actions[id]
	return a, ok
}

// Fields returns the dialog fields of mode.
func (s *Section) Fields(mode form.Mode) []form.Field {
	return slices.Clone(s.fields[mode])
}

func (s *Section) idField() string {
	return cmp.Or(s.def.Entity.IDField, model.DefaultIDField)
}
