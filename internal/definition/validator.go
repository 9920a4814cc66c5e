package definition

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and against the catalog of
// named renderers and field validators.
type Validator struct {
	renderers  map[string]bool
	validators map[string]bool
}

// NewValidator creates a new Validator. Without a catalog, renderer and
// validator names are not checked.
func NewValidator() *Validator {
	return &Validator{}
}

// WithCatalog makes the validator reject renderer and validator names that
// are not in the given lists.
func (v *Validator) WithCatalog(renderers, validators []string) *Validator {
	v.renderers = toSet(renderers)
	v.validators = toSet(validators)
	return v
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Validate checks all definitions.
func (v *Validator) Validate(defs []model.SectionDefinition) []VError {
	var errs []VError
	seen := make(map[string]int)
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if first, dup := seen[def.Section]; dup && def.Section != "" {
			errs = append(errs, VError{
				Path:    prefix + ".section",
				Code:    "DUPLICATE",
				Message: fmt.Sprintf("section %q already defined by definitions[%d]", def.Section, first),
			})
		} else {
			seen[def.Section] = i
		}
		errs = append(errs, v.validateSection(prefix, def)...)
	}
	return errs
}

var sectionIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func (v *Validator) validateSection(prefix string, def model.SectionDefinition) []VError {
	var errs []VError

	switch {
	case def.Section == "":
		errs = append(errs, VError{Path: prefix + ".section", Code: "REQUIRED", Message: "section is required"})
	case !sectionIDPattern.MatchString(def.Section):
		errs = append(errs, VError{Path: prefix + ".section", Code: "INVALID", Message: fmt.Sprintf("section id %q must be lowercase", def.Section)})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if def.Navigation.Label == "" {
		errs = append(errs, VError{Path: prefix + ".navigation.label", Code: "REQUIRED", Message: "navigation.label is required"})
	}

	// Capability namespaces must match the section ID.
	if def.Section != "" {
		errs = append(errs, checkNamespace(prefix+".navigation.capabilities", def.Section, def.Navigation.Capabilities)...)
		if def.Table != nil {
			for i, a := range def.Table.Actions {
				errs = append(errs, checkNamespace(fmt.Sprintf("%s.table.actions[%d].capabilities", prefix, i), def.Section, a.Capabilities)...)
			}
		}
	}

	if def.Entity.ID.Length < 0 || def.Entity.ID.Length > 64 {
		errs = append(errs, VError{Path: prefix + ".entity.id.length", Code: "RANGE", Message: "id length must be 0-64"})
	}

	if def.Table == nil {
		if def.Form != nil {
			errs = append(errs, VError{Path: prefix + ".table", Code: "REQUIRED", Message: "a form needs a table"})
		}
		if len(def.Fixtures) > 0 {
			errs = append(errs, VError{Path: prefix + ".fixtures", Code: "INVALID", Message: "fixtures need a table"})
		}
		return errs
	}

	errs = append(errs, v.validateTable(prefix+".table", *def.Table)...)

	needsForm := def.Table.RowClick != ""
	for _, a := range def.Table.Actions {
		if a.ID == model.ActionCreate || a.ID == model.ActionEdit {
			needsForm = true
		}
	}
	switch {
	case def.Form != nil:
		errs = append(errs, v.validateForm(prefix+".form", *def.Form)...)
	case needsForm:
		errs = append(errs, VError{Path: prefix + ".form", Code: "REQUIRED", Message: "form is required for row_click, create and edit"})
	}

	idField := def.Entity.IDField
	if idField == "" {
		idField = model.DefaultIDField
	}
	ids := make(map[string]bool, len(def.Fixtures))
	for i, f := range def.Fixtures {
		id := model.Record(f).ID(idField)
		if id != "" && ids[id] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.fixtures[%d]", prefix, i), Code: "DUPLICATE", Message: fmt.Sprintf("duplicate id %q", id)})
		}
		ids[id] = true
	}

	return errs
}

func checkNamespace(path, section string, caps []string) []VError {
	var errs []VError
	for _, c := range caps {
		if !strings.HasPrefix(c, section+":") && c != "*" {
			errs = append(errs, VError{
				Path:    path,
				Code:    "NAMESPACE_MISMATCH",
				Message: fmt.Sprintf("capability %q does not match section %q", c, section),
			})
		}
	}
	return errs
}

var validRowClicks = map[string]bool{
	"": true, string(form.ModeView): true, string(form.ModeEdit): true,
}

var validActions = map[string]bool{
	model.ActionCreate: true, model.ActionEdit: true, model.ActionDelete: true,
}

func (v *Validator) validateTable(prefix string, t model.TableDefinition) []VError {
	var errs []VError

	if len(t.Columns) == 0 {
		errs = append(errs, VError{Path: prefix + ".columns", Code: "REQUIRED", Message: "at least one column is required"})
	}
	keys := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		cp := fmt.Sprintf("%s.columns[%d]", prefix, i)
		if c.Key == "" {
			errs = append(errs, VError{Path: cp + ".key", Code: "REQUIRED", Message: "key is required"})
		} else if keys[c.Key] {
			errs = append(errs, VError{Path: cp + ".key", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate column %q", c.Key)})
		}
		keys[c.Key] = true
		if c.Render != "" && v.renderers != nil && !v.renderers[c.Render] {
			errs = append(errs, VError{Path: cp + ".render", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("renderer %q not found", c.Render)})
		}
	}

	for i, k := range t.SearchKeys {
		if k == "" {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.search_keys[%d]", prefix, i), Code: "REQUIRED", Message: "search key is empty"})
		}
	}

	for i, f := range t.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Key == "" {
			errs = append(errs, VError{Path: fp + ".key", Code: "REQUIRED", Message: "key is required"})
		}
		if len(f.Options) == 0 {
			errs = append(errs, VError{Path: fp + ".options", Code: "REQUIRED", Message: "at least one option is required"})
		}
		for _, o := range f.Options {
			if o.Value == "all" || o.Value == "" {
				errs = append(errs, VError{Path: fp + ".options", Code: "INVALID", Message: fmt.Sprintf("option value %q is reserved", o.Value)})
			}
		}
	}

	for i, n := range t.PageSizes {
		if n <= 0 || n > 500 {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.page_sizes[%d]", prefix, i), Code: "RANGE", Message: "page size must be 1-500"})
		}
	}

	if !validRowClicks[t.RowClick] {
		errs = append(errs, VError{Path: prefix + ".row_click", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid row_click %q", t.RowClick)})
	}

	var actionIDs []string
	for i, a := range t.Actions {
		ap := fmt.Sprintf("%s.actions[%d]", prefix, i)
		switch {
		case !validActions[a.ID]:
			errs = append(errs, VError{Path: ap + ".id", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid action %q", a.ID)})
		case slices.Contains(actionIDs, a.ID):
			errs = append(errs, VError{Path: ap + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate action %q", a.ID)})
		}
		actionIDs = append(actionIDs, a.ID)
	}

	return errs
}

func (v *Validator) validateForm(prefix string, f model.FormDefinition) []VError {
	var errs []VError

	if len(f.Fields) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}
	for mode := range f.Titles {
		if _, err := form.ParseMode(mode); err != nil {
			errs = append(errs, VError{Path: prefix + ".titles", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid mode %q", mode)})
		}
	}

	keys := make(map[string]bool, len(f.Fields))
	for i, fd := range f.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if fd.Key == "" {
			errs = append(errs, VError{Path: fp + ".key", Code: "REQUIRED", Message: "key is required"})
		} else if keys[fd.Key] {
			errs = append(errs, VError{Path: fp + ".key", Code: "DUPLICATE", Message: fmt.Sprintf("duplicate field %q", fd.Key)})
		}
		keys[fd.Key] = true
		errs = append(errs, v.validateField(fp, fd)...)
	}

	return errs
}

func (v *Validator) validateField(prefix string, fd model.FieldDefinition) []VError {
	var errs []VError

	kind, err := form.ParseKind(fd.Type)
	if err != nil {
		errs = append(errs, VError{Path: prefix + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", fd.Type)})
	}
	if (kind == form.KindSelect || kind == form.KindMultiSelect) && len(fd.Options) == 0 {
		errs = append(errs, VError{Path: prefix + ".options", Code: "REQUIRED", Message: "options are required for select fields"})
	}
	if kind == form.KindCustom && fd.Widget == "" {
		errs = append(errs, VError{Path: prefix + ".widget", Code: "REQUIRED", Message: "widget is required for custom fields"})
	}
	if (fd.Min != nil || fd.Max != nil) && kind != form.KindNumber {
		errs = append(errs, VError{Path: prefix + ".min", Code: "INVALID", Message: "min/max apply to number fields only"})
	}
	if fd.Min != nil && fd.Max != nil && *fd.Min > *fd.Max {
		errs = append(errs, VError{Path: prefix + ".max", Code: "RANGE", Message: "max must not be below min"})
	}
	for _, m := range fd.HiddenIn {
		if _, err := form.ParseMode(m); err != nil {
			errs = append(errs, VError{Path: prefix + ".hidden_in", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid mode %q", m)})
		}
	}

	if val := fd.Validation; val != nil {
		switch {
		case val.Pattern != "":
			if _, err := regexp.Compile(val.Pattern); err != nil {
				errs = append(errs, VError{Path: prefix + ".validation.pattern", Code: "INVALID", Message: err.Error()})
			}
		case val.Validator == "":
			errs = append(errs, VError{Path: prefix + ".validation", Code: "REQUIRED", Message: "validation needs a pattern or a validator"})
		case v.validators != nil && !v.validators[val.Validator]:
			errs = append(errs, VError{Path: prefix + ".validation.validator", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("validator %q not found", val.Validator)})
		}
	}

	return errs
}
