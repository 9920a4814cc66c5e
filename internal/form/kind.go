package form

import "fmt"

// Kind is the type tag of a field. The set of kinds is closed: every switch
// over Kind in this package lists all of them, and ParseKind rejects
// anything else.
type Kind string

const (
	KindText        Kind = "text"
	KindEmail       Kind = "email"
	KindNumber      Kind = "number"
	KindDate        Kind = "date"
	KindTime        Kind = "time"
	KindDateTime    Kind = "datetime"
	KindTextArea    Kind = "textarea"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multiselect"
	KindCheckbox    Kind = "checkbox"
	KindSwitch      Kind = "switch"
	KindTags        Kind = "tags"
	KindCustom      Kind = "custom"
)

// Kinds returns every field kind.
func Kinds() []Kind {
	return []Kind{
		KindText, KindEmail, KindNumber, KindDate, KindTime, KindDateTime,
		KindTextArea, KindSelect, KindMultiSelect, KindCheckbox, KindSwitch,
		KindTags, KindCustom,
	}
}

// ParseKind converts a definition type string into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("form: unknown field type %q", s)
}

// Shape is the Go shape of a draft value.
type Shape int

const (
	ShapeString Shape = iota
	ShapeNumber
	ShapeBool
	ShapeList
	ShapeAny
)

// Shape returns the value shape held by fields of kind k.
func (k Kind) Shape() Shape {
	switch k {
	case KindText, KindEmail, KindDate, KindTime, KindDateTime, KindTextArea, KindSelect:
		return ShapeString
	case KindNumber:
		return ShapeNumber
	case KindCheckbox, KindSwitch:
		return ShapeBool
	case KindMultiSelect, KindTags:
		return ShapeList
	case KindCustom:
		return ShapeAny
	}
	panic(fmt.Sprintf("form: unhandled field kind %q", k))
}

// Control is the input widget used to edit a field.
type Control string

const (
	ControlInput     Control = "input"
	ControlTextArea  Control = "textarea"
	ControlDropdown  Control = "dropdown"
	ControlChecklist Control = "checklist"
	ControlCheckbox  Control = "checkbox"
	ControlToggle    Control = "toggle"
	ControlTagInput  Control = "tag-input"
	ControlCustom    Control = "custom"
)

// Control returns the widget for kind k and, for single-line inputs, the
// HTML input type.
func (k Kind) Control() (Control, string) {
	switch k {
	case KindText:
		return ControlInput, "text"
	case KindEmail:
		return ControlInput, "email"
	case KindNumber:
		return ControlInput, "number"
	case KindDate:
		return ControlInput, "date"
	case KindTime:
		return ControlInput, "time"
	case KindDateTime:
		return ControlInput, "datetime-local"
	case KindTextArea:
		return ControlTextArea, ""
	case KindSelect:
		return ControlDropdown, ""
	case KindMultiSelect:
		return ControlChecklist, ""
	case KindCheckbox:
		return ControlCheckbox, ""
	case KindSwitch:
		return ControlToggle, ""
	case KindTags:
		return ControlTagInput, ""
	case KindCustom:
		return ControlCustom, ""
	}
	panic(fmt.Sprintf("form: unhandled field kind %q", k))
}

// emptyValue is the draft value of a field with no declared default.
func (k Kind) emptyValue() any {
	switch k.Shape() {
	case ShapeBool:
		return false
	case ShapeList:
		return []string{}
	case ShapeString, ShapeNumber, ShapeAny:
		return ""
	}
	panic(fmt.Sprintf("form: unhandled field kind %q", k))
}
