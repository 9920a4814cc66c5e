package form

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pitabwire/repairdesk/model"
)

// SetValue replaces the draft value of key. The value must fit the field's
// kind: strings for text-like kinds and select, numbers (or numeric text) for
// number, booleans for checkbox and switch, string lists for multiselect and
// tags. Custom fields accept anything. The field's error is cleared.
func (d *Dialog) SetValue(key string, value any) error {
	f, err := d.editable(key)
	if err != nil {
		return err
	}
	v, err := coerce(f, value)
	if err != nil {
		return err
	}
	d.set(key, v)
	return nil
}

// SetValues applies several values at once. Every value is checked before
// any is written, so a failing key leaves the draft untouched. Keys are
// checked in sorted order, making the reported error deterministic.
func (d *Dialog) SetValues(values map[string]any) error {
	coerced := make(map[string]any, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		f, err := d.editable(key)
		if err != nil {
			return err
		}
		v, err := coerce(f, values[key])
		if err != nil {
			return err
		}
		coerced[key] = v
	}
	for key, v := range coerced {
		d.set(key, v)
	}
	return nil
}

// SetText handles typed input into a text-like or number field. Number
// fields coerce the text to a number; text that does not parse is kept as
// typed and reported on submit.
func (d *Dialog) SetText(key, text string) error {
	f, err := d.editable(key)
	if err != nil {
		return err
	}
	switch f.Kind.Shape() {
	case ShapeString, ShapeNumber:
	case ShapeBool, ShapeList, ShapeAny:
		return fmt.Errorf("%w: %q is a %s field", ErrValueShape, key, f.Kind)
	}
	v, err := coerce(f, text)
	if err != nil {
		return err
	}
	d.set(key, v)
	return nil
}

// ToggleOption includes or excludes one option of a multiselect field.
func (d *Dialog) ToggleOption(key, value string, checked bool) error {
	f, err := d.editable(key)
	if err != nil {
		return err
	}
	if f.Kind != KindMultiSelect {
		return fmt.Errorf("%w: %q is not a multiselect", ErrValueShape, key)
	}
	if !f.hasOption(value) {
		return fmt.Errorf("%w: %q=%q", ErrUnknownOpt, key, value)
	}
	current := stringList(d.draft[key])
	has := slices.Contains(current, value)
	switch {
	case checked && !has:
		current = append(current, value)
	case !checked && has:
		current = slices.DeleteFunc(current, func(s string) bool { return s == value })
	}
	d.set(key, current)
	return nil
}

// TypeTag handles a keystroke in a tag field. input is the full text of the
// tag entry box. A trailing comma or space commits the text as a tag. The
// returned string is what the entry box should now contain.
func (d *Dialog) TypeTag(key, input string) (string, error) {
	f, err := d.tagField(key)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(input, ",") || strings.HasSuffix(input, " ") {
		d.commitTag(f, input)
		return "", nil
	}
	d.pending[key] = input
	return input, nil
}

// CommitTag commits the pending entry text of a tag field, as pressing Enter
// does. It reports whether a new tag was added.
func (d *Dialog) CommitTag(key string) (bool, error) {
	f, err := d.tagField(key)
	if err != nil {
		return false, err
	}
	return d.commitTag(f, d.pending[key]), nil
}

// PendingTag returns the uncommitted entry text of a tag field.
func (d *Dialog) PendingTag(key string) string { return d.pending[key] }

// RemoveTag removes the tag at index from a tag field.
func (d *Dialog) RemoveTag(key string, index int) error {
	if _, err := d.tagField(key); err != nil {
		return err
	}
	tags := stringList(d.draft[key])
	if index < 0 || index >= len(tags) {
		return fmt.Errorf("%w: %d", ErrTagIndex, index)
	}
	d.set(key, slices.Delete(tags, index, index+1))
	return nil
}

func (d *Dialog) tagField(key string) (Field, error) {
	f, err := d.editable(key)
	if err != nil {
		return Field{}, err
	}
	if f.Kind != KindTags {
		return Field{}, fmt.Errorf("%w: %q is not a tag field", ErrValueShape, key)
	}
	return f, nil
}

// commitTag is the single path by which entry text becomes a tag, whichever
// key triggered it. Separators and surrounding blanks are stripped; empty
// and duplicate tags are dropped. The entry box is always cleared.
func (d *Dialog) commitTag(f Field, raw string) bool {
	delete(d.pending, f.Key)
	tag := normalizeTag(raw)
	if tag == "" {
		return false
	}
	tags := stringList(d.draft[f.Key])
	if slices.Contains(tags, tag) {
		return false
	}
	d.set(f.Key, append(tags, tag))
	return true
}

func normalizeTag(raw string) string {
	return strings.TrimSpace(strings.TrimRight(raw, ", "))
}

// coerce converts value into the draft shape of f.
func coerce(f Field, value any) (any, error) {
	switch f.Kind.Shape() {
	case ShapeString:
		s, ok := value.(string)
		if value == nil {
			s, ok = "", true
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q wants text", ErrValueShape, f.Key)
		}
		if f.Kind == KindSelect && s != "" && !f.hasOption(s) {
			return nil, fmt.Errorf("%w: %q=%q", ErrUnknownOpt, f.Key, s)
		}
		return s, nil

	case ShapeNumber:
		if value == nil {
			return "", nil
		}
		if s, ok := value.(string); ok {
			return parseNumberText(s), nil
		}
		if n, ok := toNumber(value); ok {
			return n, nil
		}
		return nil, fmt.Errorf("%w: %q wants a number", ErrValueShape, f.Key)

	case ShapeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %q wants true or false", ErrValueShape, f.Key)
		}
		return b, nil

	case ShapeList:
		items, ok := toStrings(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q wants a list of strings", ErrValueShape, f.Key)
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if f.Kind == KindTags {
				it = normalizeTag(it)
				if it == "" {
					continue
				}
			} else if !f.hasOption(it) {
				return nil, fmt.Errorf("%w: %q=%q", ErrUnknownOpt, f.Key, it)
			}
			if !slices.Contains(out, it) {
				out = append(out, it)
			}
		}
		return out, nil

	case ShapeAny:
		return model.CloneValue(value), nil
	}
	panic(fmt.Sprintf("form: unhandled field kind %q", f.Kind))
}

// parseNumberText turns typed text into a float64. Blank text stays blank and
// unparsable text is kept verbatim.
func parseNumberText(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(t, 64); err == nil {
		return n
	}
	return s
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// stringList returns a fresh copy of a list-shaped draft value.
func stringList(v any) []string {
	items, ok := toStrings(v)
	if !ok {
		return []string{}
	}
	return slices.Clone(items)
}
