package form

import (
	"fmt"
	"slices"

	"github.com/pitabwire/repairdesk/model"
)

// OptionView is an option as rendered, with its selection state.
type OptionView struct {
	Value    string
	Label    string
	Selected bool
}

// FieldView is one rendered field of an open dialog.
type FieldView struct {
	Key         string
	Label       string
	Kind        Kind
	Control     Control
	InputType   string
	Placeholder string
	Required    bool
	Editable    bool
	Min         *float64
	Max         *float64
	Rows        int
	Options     []OptionView
	Value       any
	Pending     string
	Error       string
	Widget      any
}

// Render returns the visible fields of an open dialog in declaration order.
// Hidden fields are skipped. A closed dialog renders nothing.
func (d *Dialog) Render() []FieldView {
	if d.state != StateOpen {
		return nil
	}
	views := make([]FieldView, 0, len(d.cfg.Fields))
	for _, f := range d.cfg.Fields {
		if f.Hidden {
			continue
		}
		views = append(views, d.renderField(f))
	}
	return views
}

func (d *Dialog) renderField(f Field) FieldView {
	control, inputType := f.Kind.Control()
	fv := FieldView{
		Key:         f.Key,
		Label:       f.Label,
		Kind:        f.Kind,
		Control:     control,
		InputType:   inputType,
		Placeholder: f.Placeholder,
		Required:    f.Required,
		Editable:    !f.Disabled && d.cfg.Mode != ModeView,
		Value:       model.CloneValue(d.draft[f.Key]),
	}
	if fe, ok := d.errs[f.Key]; ok {
		fv.Error = fe.Message
	}

	switch f.Kind {
	case KindText, KindEmail, KindDate, KindTime, KindDateTime:
		fv.Value = textValue(fv.Value)
	case KindNumber:
		fv.Min, fv.Max = f.Min, f.Max
	case KindTextArea:
		fv.Value = textValue(fv.Value)
		fv.Rows = f.rows()
	case KindSelect:
		selected := textValue(fv.Value)
		fv.Options = optionViews(f.Options, func(v string) bool { return v == selected })
	case KindMultiSelect:
		chosen := stringList(fv.Value)
		fv.Value = chosen
		fv.Options = optionViews(f.Options, func(v string) bool { return slices.Contains(chosen, v) })
	case KindCheckbox, KindSwitch:
		b, _ := fv.Value.(bool)
		fv.Value = b
	case KindTags:
		fv.Value = stringList(fv.Value)
		fv.Pending = d.pending[f.Key]
	case KindCustom:
		key := f.Key
		onChange := func(v any) error { return d.SetValue(key, v) }
		fv.Widget = f.Render(d.draft[key], onChange, d.draft.Clone())
	default:
		panic(fmt.Sprintf("form: unhandled field kind %q", f.Kind))
	}
	return fv
}

func optionViews(opts []Option, selected func(string) bool) []OptionView {
	out := make([]OptionView, len(opts))
	for i, o := range opts {
		out[i] = OptionView{Value: o.Value, Label: o.Label, Selected: selected(o.Value)}
	}
	return out
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
