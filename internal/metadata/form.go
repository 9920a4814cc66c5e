package metadata

import (
	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/model"
)

// DescribeDialog renders an editor for the frontend. A closed editor
// describes itself with Open false and no fields.
func DescribeDialog(e *section.Editor) model.DialogDescriptor {
	desc := model.DialogDescriptor{
		Section:     e.Section(),
		Title:       e.Title(),
		Mode:        string(e.Mode()),
		Open:        e.IsOpen(),
		RecordID:    e.RecordID(),
		ReadOnly:    e.ReadOnly(),
		SubmitLabel: e.SubmitLabel(),
		CanDelete:   e.CanDelete(),
		Fields:      []model.FieldDescriptor{},
		Errors:      e.Errors(),
	}
	if desc.CanDelete {
		desc.DeleteLabel = e.DeleteLabel()
	}
	for _, fv := range e.Render() {
		desc.Fields = append(desc.Fields, describeField(fv))
	}
	return desc
}

func describeField(fv form.FieldView) model.FieldDescriptor {
	fd := model.FieldDescriptor{
		Key:         fv.Key,
		Label:       fv.Label,
		Type:        string(fv.Kind),
		Control:     string(fv.Control),
		InputType:   fv.InputType,
		Placeholder: fv.Placeholder,
		Required:    fv.Required,
		Editable:    fv.Editable,
		Min:         fv.Min,
		Max:         fv.Max,
		Rows:        fv.Rows,
		Value:       fv.Value,
		Pending:     fv.Pending,
		Error:       fv.Error,
		Widget:      fv.Widget,
	}
	for _, o := range fv.Options {
		fd.Options = append(fd.Options, model.OptionDescriptor{
			Label:    o.Label,
			Value:    o.Value,
			Selected: o.Selected,
		})
	}
	return fd
}
