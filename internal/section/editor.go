package section

import (
	"cmp"
	"context"
	"fmt"

	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// Desk holds the record dialog a user has open in each section. At most one
// dialog per section exists; opening another replaces it.
type Desk interface {
	Editor(section string) *Editor
	SetEditor(section string, e *Editor)
}

// Editor is a record dialog bound to a section's store.
type Editor struct {
	*form.Dialog
	section  string
	recordID string
	saved    model.Record
}

// Section returns the owning section ID.
func (e *Editor) Section() string { return e.section }

// RecordID returns the ID of the record being edited or viewed, or "" for a
// create dialog.
func (e *Editor) RecordID() string { return e.recordID }

// Saved returns the stored record after a successful submit.
func (e *Editor) Saved() model.Record { return e.saved }

// Handlers returns the table handlers available to a user holding caps.
// Actions the user may not perform get no handler and so are not offered.
func (s *Section) Handlers(desk Desk, caps model.CapabilitySet) table.Handlers {
	var h table.Handlers
	if !s.HasData() || !s.Visible(caps) {
		return h
	}

	if mode := s.RowClickMode(caps); mode != "" {
		h.RowClick = func(ctx context.Context, row model.Record) error {
			_, err := s.OpenDialog(ctx, desk, caps, mode, row.ID(s.idField()))
			return err
		}
	}
	if s.Allowed(model.ActionEdit, caps) {
		h.Edit = func(ctx context.Context, row model.Record) error {
			_, err := s.OpenDialog(ctx, desk, caps, form.ModeEdit, row.ID(s.idField()))
			return err
		}
	}
	if s.Allowed(model.ActionDelete, caps) {
		h.Delete = func(ctx context.Context, row model.Record) error {
			return s.remove(ctx, desk, row.ID(s.idField()))
		}
	}
	if s.Allowed(model.ActionCreate, caps) {
		h.Create = func(ctx context.Context) error {
			_, err := s.OpenDialog(ctx, desk, caps, form.ModeCreate, "")
			return err
		}
	}
	return h
}

// Bound returns the section table wired to the handlers available to caps.
func (s *Section) Bound(desk Desk, caps model.CapabilitySet) *table.Table {
	if !s.HasData() {
		return nil
	}
	return s.table.WithHandlers(s.Handlers(desk, caps))
}

// Dispatch applies v to the section's records and delivers target to the
// matching handler. Only rows on the current page can be targeted.
func (s *Section) Dispatch(ctx context.Context, desk Desk, caps model.CapabilitySet, v *table.View, target table.Target) error {
	if !s.HasData() {
		return ErrNoData
	}
	tbl := s.Bound(desk, caps)
	page := tbl.Apply(s.Rows(), v)
	return tbl.Dispatch(ctx, page.Rows, target)
}

// RowClickMode returns the dialog mode a row click opens for caps, or "" when
// rows are not clickable.
func (s *Section) RowClickMode(caps model.CapabilitySet) form.Mode {
	if !s.HasData() {
		return ""
	}
	mode := form.Mode(s.def.Table.RowClick)
	if mode == "" || !s.mayOpen(mode, caps) {
		return ""
	}
	return mode
}

func (s *Section) mayOpen(mode form.Mode, caps model.CapabilitySet) bool {
	if _, ok := s.fields[mode]; !ok {
		return false
	}
	switch mode {
	case form.ModeCreate:
		return s.Allowed(model.ActionCreate, caps)
	case form.ModeEdit:
		return s.Allowed(model.ActionEdit, caps)
	case form.ModeView:
		return s.Visible(caps)
	}
	return false
}

// OpenDialog opens a record dialog in mode and records it on desk,
// replacing any dialog already open in the section. recordID is ignored in
// create mode.
func (s *Section) OpenDialog(ctx context.Context, desk Desk, caps model.CapabilitySet, mode form.Mode, recordID string) (*Editor, error) {
	if !s.HasData() {
		return nil, ErrNoData
	}
	if _, err := form.ParseMode(string(mode)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownMode, err)
	}
	if _, ok := s.fields[mode]; !ok {
		return nil, fmt.Errorf("%w: %s has no form", ErrUnknownMode, s.ID())
	}
	if !s.mayOpen(mode, caps) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotAllowed, mode, s.ID())
	}

	var record model.Record
	if mode != form.ModeCreate {
		rec, err := s.store.Get(ctx, recordID)
		if err != nil {
			return nil, err
		}
		record = rec
	} else {
		recordID = ""
	}

	e := &Editor{section: s.ID(), recordID: recordID}
	cfg := form.Config{
		Title:       s.title(mode),
		Fields:      s.fields[mode],
		Mode:        mode,
		Record:      record,
		SubmitLabel: s.def.Form.SubmitLabels[string(mode)],
		DeleteLabel: s.def.Form.DeleteLabel,
	}
	switch mode {
	case form.ModeCreate:
		cfg.OnSubmit = func(ctx context.Context, draft model.Record) error {
			saved, err := s.store.Add(ctx, draft)
			if err != nil {
				return err
			}
			e.saved, e.recordID = saved, saved.ID(s.idField())
			return nil
		}
	case form.ModeEdit:
		cfg.OnSubmit = func(ctx context.Context, draft model.Record) error {
			saved, err := s.store.Replace(ctx, recordID, draft)
			if err != nil {
				return err
			}
			e.saved = saved
			return nil
		}
		if s.Allowed(model.ActionDelete, caps) {
			cfg.OnDelete = func(ctx context.Context, _ model.Record) error {
				return s.store.Remove(ctx, recordID)
			}
		}
	}

	d, err := form.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", s.ID(), err)
	}
	d.Open()
	e.Dialog = d
	desk.SetEditor(s.ID(), e)
	return e, nil
}

// OpenEditor returns the dialog open in the section.
func (s *Section) OpenEditor(desk Desk) (*Editor, error) {
	e := desk.Editor(s.ID())
	if e == nil || !e.IsOpen() {
		return nil, ErrNoDialog
	}
	return e, nil
}

// remove deletes a record and closes a dialog showing it.
func (s *Section) remove(ctx context.Context, desk Desk, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	if e := desk.Editor(s.ID()); e != nil && e.IsOpen() && e.recordID == id {
		e.Close()
	}
	return nil
}

func (s *Section) title(mode form.Mode) string {
	if t := s.def.Form.Titles[string(mode)]; t != "" {
		return t
	}
	base := cmp.Or(s.def.Title, s.def.Navigation.Label)
	switch mode {
	case form.ModeCreate:
		return "New " + base
	case form.ModeEdit:
		return "Edit " + base
	default:
		return base
	}
}
