package form

import (
	"fmt"
	"strconv"

	"github.com/pitabwire/repairdesk/model"
)

// validate checks every visible field and returns at most one error per
// field. Rules run in a fixed priority and the first failure wins:
// required, numeric parse, minimum, maximum, custom validator. An empty value
// on a field that is not required passes without further checks.
func (d *Dialog) validate() map[string]model.FieldError {
	errs := make(map[string]model.FieldError)
	for _, f := range d.cfg.Fields {
		if f.Hidden {
			continue
		}
		if fe, failed := checkField(f, d.draft[f.Key]); failed {
			errs[f.Key] = fe
		}
	}
	return errs
}

func checkField(f Field, v any) (model.FieldError, bool) {
	fail := func(code, msg string) (model.FieldError, bool) {
		return model.FieldError{Field: f.Key, Code: code, Message: msg}, true
	}

	if isBlank(v) {
		if f.Required {
			return fail(model.FieldRequired, fmt.Sprintf("%s is required", f.Label))
		}
		return model.FieldError{}, false
	}

	if f.Kind == KindNumber {
		n, ok := toNumber(v)
		if !ok {
			return fail(model.FieldNotANumber, fmt.Sprintf("%s must be a number", f.Label))
		}
		if f.Min != nil && n < *f.Min {
			return fail(model.FieldBelowMin, "Minimum value: "+formatNumber(*f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return fail(model.FieldAboveMax, "Maximum value: "+formatNumber(*f.Max))
		}
	}

	if f.Validate != nil {
		if msg := f.Validate(v); msg != "" {
			return fail(model.FieldInvalid, msg)
		}
	}
	return model.FieldError{}, false
}

// isBlank reports whether a draft value counts as missing: absent, nil, or
// the empty string. Empty lists and false are values.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
