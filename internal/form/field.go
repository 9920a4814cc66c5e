package form

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pitabwire/repairdesk/model"
)

// defaultTextAreaRows is the visible row count of a textarea that declares
// none.
const defaultTextAreaRows = 4

// Option is a selectable value of a select or multiselect field.
type Option struct {
	Value string
	Label string
}

// Validator checks a draft value and returns an error message, or "" when
// the value is acceptable.
type Validator func(value any) string

// RenderFunc draws a custom field. onChange writes a new value into the
// draft; draft is a read-only snapshot of the whole draft.
type RenderFunc func(value any, onChange func(any) error, draft model.Record) any

// Field describes one form field.
type Field struct {
	Key         string
	Label       string
	Kind        Kind
	Placeholder string
	Required    bool
	Options     []Option
	Min         *float64
	Max         *float64
	Rows        int
	Disabled    bool
	Hidden      bool

	// Default seeds the draft when no record is supplied. DefaultFunc, when
	// set, takes precedence and is evaluated on every open.
	Default     any
	DefaultFunc func() any

	Validate Validator
	Render   RenderFunc
}

func (f Field) hasOption(value string) bool {
	return slices.ContainsFunc(f.Options, func(o Option) bool { return o.Value == value })
}

func (f Field) rows() int {
	if f.Rows > 0 {
		return f.Rows
	}
	return defaultTextAreaRows
}

func (f Field) initialValue() any {
	switch {
	case f.DefaultFunc != nil:
		return f.DefaultFunc()
	case f.Default != nil:
		return model.CloneValue(f.Default)
	default:
		return f.Kind.emptyValue()
	}
}

// checkFields validates a field list.
func checkFields(fields []Field) error {
	if len(fields) == 0 {
		return errors.New("form: at least one field is required")
	}
	seen := make(map[string]bool, len(fields))
	var errs []error
	for i, f := range fields {
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("form: field %d has no key", i))
			continue
		}
		if seen[f.Key] {
			errs = append(errs, fmt.Errorf("form: duplicate field %q", f.Key))
		}
		seen[f.Key] = true
		if _, err := ParseKind(string(f.Kind)); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", f.Key, err))
			continue
		}
		switch f.Kind {
		case KindSelect, KindMultiSelect:
			if len(f.Options) == 0 {
				errs = append(errs, fmt.Errorf("form: field %q needs options", f.Key))
			}
		case KindCustom:
			if f.Render == nil {
				errs = append(errs, fmt.Errorf("form: custom field %q needs a render function", f.Key))
			}
		}
		if (f.Min != nil || f.Max != nil) && f.Kind != KindNumber {
			errs = append(errs, fmt.Errorf("form: field %q: min/max apply to number fields only", f.Key))
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			errs = append(errs, fmt.Errorf("form: field %q: min exceeds max", f.Key))
		}
	}
	return errors.Join(errs...)
}
