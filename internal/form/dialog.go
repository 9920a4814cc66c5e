// Package form implements a modal record editor driven by field
// descriptors. A Dialog owns a draft copy of one record and its validation
// errors for the time it is open; it hands the draft to the caller on submit
// and never stores data itself.
package form

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/pitabwire/repairdesk/model"
)

// Mode selects how a dialog treats its record.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
	ModeView   Mode = "view"
)

// ParseMode converts a mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCreate, ModeEdit, ModeView:
		return Mode(s), nil
	}
	return "", fmt.Errorf("form: unknown mode %q", s)
}

// State is the lifecycle state of a dialog.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Outcome records how a dialog last closed.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSubmitted Outcome = "submitted"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeDeleted   Outcome = "deleted"
)

// Dialog errors.
var (
	ErrClosed       = errors.New("form: dialog is closed")
	ErrUnknownField = errors.New("form: unknown field")
	ErrReadOnly     = errors.New("form: dialog is read-only")
	ErrDisabled     = errors.New("form: field is disabled")
	ErrValueShape   = errors.New("form: value does not fit the field type")
	ErrUnknownOpt   = errors.New("form: unknown option")
	ErrTagIndex     = errors.New("form: tag index out of range")
	ErrNoDelete     = errors.New("form: delete is not available")
)

// Config configures a Dialog.
type Config struct {
	Title  string
	Fields []Field
	Mode   Mode
	// Record is the record being edited or viewed. It must be set for edit
	// and view; for create it is normally nil and the draft is seeded from
	// field defaults.
	Record model.Record

	OnSubmit func(ctx context.Context, draft model.Record) error
	OnDelete func(ctx context.Context, record model.Record) error

	SubmitLabel string
	DeleteLabel string
}

// Result describes the effect of a submit attempt.
type Result struct {
	Outcome Outcome
	Draft   model.Record
	Errors  []model.FieldError
}

// Accepted reports whether the dialog closed as a result of the attempt.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeSubmitted || r.Outcome == OutcomeDismissed
}

// Dialog is one record editor. It is not safe for concurrent use.
type Dialog struct {
	cfg     Config
	byKey   map[string]int
	state   State
	outcome Outcome
	draft   model.Record
	errs    map[string]model.FieldError
	pending map[string]string
}

// New validates cfg and returns a closed dialog.
func New(cfg Config) (*Dialog, error) {
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeCreate && cfg.Record == nil {
		return nil, fmt.Errorf("form: %s mode needs a record", cfg.Mode)
	}
	if cfg.Mode != ModeView && cfg.OnSubmit == nil {
		return nil, fmt.Errorf("form: %s mode needs a submit handler", cfg.Mode)
	}
	if err := checkFields(cfg.Fields); err != nil {
		return nil, err
	}
	d := &Dialog{
		cfg:   cfg,
		byKey: make(map[string]int, len(cfg.Fields)),
		state: StateClosed,
	}
	d.cfg.Fields = append([]Field(nil), cfg.Fields...)
	for i, f := range d.cfg.Fields {
		d.byKey[f.Key] = i
	}
	return d, nil
}

// Open shows the dialog. Opening a closed dialog reinitializes the draft from
// the record, or from field defaults when there is none, and clears all
// errors. Opening an open dialog does nothing.
func (d *Dialog) Open() {
	if d.state == StateOpen {
		return
	}
	d.reinit()
	d.state = StateOpen
	d.outcome = OutcomeNone
}

// Retarget points the dialog at a different record and reinitializes the
// draft. A nil record switches an edit or view dialog to create semantics
// for the draft only; the mode is unchanged.
func (d *Dialog) Retarget(record model.Record) {
	d.cfg.Record = record
	if d.state == StateOpen {
		d.reinit()
	}
}

func (d *Dialog) reinit() {
	if d.cfg.Record != nil {
		d.draft = d.cfg.Record.Clone()
	} else {
		d.draft = make(model.Record, len(d.cfg.Fields))
		for _, f := range d.cfg.Fields {
			d.draft[f.Key] = f.initialValue()
		}
	}
	d.errs = make(map[string]model.FieldError)
	d.pending = make(map[string]string)
}

// Close dismisses the dialog without submitting. The draft is discarded.
func (d *Dialog) Close() {
	if d.state != StateOpen {
		return
	}
	d.finish(OutcomeCancelled)
}

func (d *Dialog) finish(o Outcome) {
	d.state = StateClosed
	d.outcome = o
	d.draft = nil
	d.errs = nil
	d.pending = nil
}

// Title returns the dialog title.
func (d *Dialog) Title() string { return d.cfg.Title }

// Mode returns the dialog mode.
func (d *Dialog) Mode() Mode { return d.cfg.Mode }

// State returns the lifecycle state.
func (d *Dialog) State() State { return d.state }

// IsOpen reports whether the dialog is open.
func (d *Dialog) IsOpen() bool { return d.state == StateOpen }

// Outcome returns how the dialog last closed.
func (d *Dialog) Outcome() Outcome { return d.outcome }

// Record returns the record the dialog was opened for, or nil.
func (d *Dialog) Record() model.Record { return d.cfg.Record }

// ReadOnly reports whether the dialog only displays its record.
func (d *Dialog) ReadOnly() bool { return d.cfg.Mode == ModeView }

// Draft returns a copy of the current draft, or nil when closed.
func (d *Dialog) Draft() model.Record { return d.draft.Clone() }

// Value returns the current draft value of key.
func (d *Dialog) Value(key string) any { return d.draft[key] }

// SubmitLabel returns the primary button label.
func (d *Dialog) SubmitLabel() string {
	if d.cfg.SubmitLabel != "" {
		return d.cfg.SubmitLabel
	}
	switch d.cfg.Mode {
	case ModeCreate:
		return "Create"
	case ModeEdit:
		return "Save"
	default:
		return "Close"
	}
}

// DeleteLabel returns the delete button label.
func (d *Dialog) DeleteLabel() string { return cmp.Or(d.cfg.DeleteLabel, "Delete") }

// CanDelete reports whether the dialog shows a delete button. Only edit
// dialogs with a delete handler do.
func (d *Dialog) CanDelete() bool {
	return d.cfg.Mode == ModeEdit && d.cfg.OnDelete != nil
}

// Errors returns the current validation errors in field order.
func (d *Dialog) Errors() []model.FieldError {
	var out []model.FieldError
	for _, f := range d.cfg.Fields {
		if fe, ok := d.errs[f.Key]; ok {
			out = append(out, fe)
		}
	}
	return out
}

// Error returns the validation error of key, if any.
func (d *Dialog) Error(key string) (model.FieldError, bool) {
	fe, ok := d.errs[key]
	return fe, ok
}

// Submit attempts to submit the draft. In view mode it only closes the
// dialog. Otherwise every visible field is validated; on failure the errors
// are kept and the dialog stays open. On success the submit handler receives
// a copy of the draft and the dialog closes. A handler error leaves the
// dialog open and is returned.
func (d *Dialog) Submit(ctx context.Context) (Result, error) {
	if d.state != StateOpen {
		return Result{}, ErrClosed
	}
	if d.cfg.Mode == ModeView {
		d.finish(OutcomeDismissed)
		return Result{Outcome: OutcomeDismissed}, nil
	}

	d.errs = d.validate()
	if len(d.errs) > 0 {
		return Result{Errors: d.Errors()}, nil
	}

	draft := d.draft.Clone()
	if err := d.cfg.OnSubmit(ctx, draft); err != nil {
		return Result{}, err
	}
	d.finish(OutcomeSubmitted)
	return Result{Outcome: OutcomeSubmitted, Draft: draft}, nil
}

// Delete hands the dialog's record to the delete handler and closes the
// dialog. It is only available in edit mode.
func (d *Dialog) Delete(ctx context.Context) error {
	if d.state != StateOpen {
		return ErrClosed
	}
	if !d.CanDelete() {
		return ErrNoDelete
	}
	if err := d.cfg.OnDelete(ctx, d.cfg.Record.Clone()); err != nil {
		return err
	}
	d.finish(OutcomeDeleted)
	return nil
}

func (d *Dialog) field(key string) (Field, bool) {
	i, ok := d.byKey[key]
	if !ok {
		return Field{}, false
	}
	return d.cfg.Fields[i], true
}

// editable returns the field behind key when the user may change it.
func (d *Dialog) editable(key string) (Field, error) {
	if d.state != StateOpen {
		return Field{}, ErrClosed
	}
	f, ok := d.field(key)
	if !ok || f.Hidden {
		return Field{}, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	if d.cfg.Mode == ModeView {
		return Field{}, ErrReadOnly
	}
	if f.Disabled {
		return Field{}, fmt.Errorf("%w: %q", ErrDisabled, key)
	}
	return f, nil
}

// set writes v and clears the field's error.
func (d *Dialog) set(key string, v any) {
	d.draft[key] = v
	delete(d.errs, key)
}
