package model

import "fmt"

// DefaultIDField is the record field used as the row key when a section does
// not declare one.
const DefaultIDField = "id"

// Record is a single entity instance (one order, one client, ...). Records are
// schemaless maps so that the table and form engines stay generic; the owning
// section's definition describes which keys exist.
type Record map[string]any

// ID returns the stringified identifier stored under idField, or "" when the
// record has none.
func (r Record) ID(idField string) string {
	if idField == "" {
		idField = DefaultIDField
	}
	v, ok := r[idField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy of the record. Nested slices and maps are copied
// so that a draft can be edited without touching the stored record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// Merge returns a copy of r with every key of patch written over it.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the container types that can appear in a record.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case Record:
		return t.Clone()
	default:
		return v
	}
}
