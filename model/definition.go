package model

// SectionDefinition is the root structure of a definition file. Each file
// declares one business section: its menu entry and, for data sections, the
// entity, table, form, and seed fixtures. A definition with no table is a
// navigation-only entry.
type SectionDefinition struct {
	Section    string               `yaml:"section"    json:"section"`
	Version    string               `yaml:"version"    json:"version"`
	Title      string               `yaml:"title"      json:"title"`
	Navigation NavigationDefinition `yaml:"navigation" json:"navigation"`
	Entity     EntityDefinition     `yaml:"entity"     json:"entity"`
	Table      *TableDefinition     `yaml:"table"      json:"table,omitempty"`
	Form       *FormDefinition      `yaml:"form"       json:"form,omitempty"`
	Fixtures   []map[string]any     `yaml:"fixtures"   json:"-"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// HasData reports whether the section lists records (as opposed to being a
// plain menu entry).
func (d SectionDefinition) HasData() bool {
	return d.Table != nil
}

// NavigationDefinition describes a section's menu entry.
type NavigationDefinition struct {
	Label        string   `yaml:"label"        json:"label"`
	Icon         string   `yaml:"icon"         json:"icon"`
	Route        string   `yaml:"route"        json:"route"`
	Order        int      `yaml:"order"        json:"order"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// EntityDefinition describes the record type a section owns.
type EntityDefinition struct {
	IDField string       `yaml:"id_field" json:"id_field"`
	ID      IDDefinition `yaml:"id"       json:"id"`
}

// IDDefinition configures identifier generation for new records.
type IDDefinition struct {
	Prefix   string `yaml:"prefix"   json:"prefix,omitempty"`
	Alphabet string `yaml:"alphabet" json:"alphabet,omitempty"`
	Length   int    `yaml:"length"   json:"length,omitempty"`
}

// TableDefinition describes the listing of a section.
type TableDefinition struct {
	Columns      []ColumnDefinition `yaml:"columns"       json:"columns"`
	SearchKeys   []string           `yaml:"search_keys"   json:"search_keys,omitempty"`
	Filters      []FilterDefinition `yaml:"filters"       json:"filters,omitempty"`
	PageSizes    []int              `yaml:"page_sizes"    json:"page_sizes,omitempty"`
	CreateLabel  string             `yaml:"create_label"  json:"create_label,omitempty"`
	EmptyMessage string             `yaml:"empty_message" json:"empty_message,omitempty"`
	// RowClick names the dialog mode opened by clicking a row ("view" or
	// "edit"); empty disables row clicks.
	RowClick string             `yaml:"row_click" json:"row_click,omitempty"`
	Actions  []ActionDefinition `yaml:"actions"   json:"actions,omitempty"`
}

// ColumnDefinition describes a table column.
type ColumnDefinition struct {
	Key       string                      `yaml:"key"        json:"key"`
	Label     string                      `yaml:"label"      json:"label"`
	Sortable  bool                        `yaml:"sortable"   json:"sortable,omitempty"`
	Width     string                      `yaml:"width"      json:"width,omitempty"`
	Render    string                      `yaml:"render"     json:"render,omitempty"`
	StatusMap map[string]StatusDefinition `yaml:"status_map" json:"status_map,omitempty"`
}

// StatusDefinition maps a raw value to a badge label and tone.
type StatusDefinition struct {
	Label string `yaml:"label" json:"label"`
	Tone  string `yaml:"tone"  json:"tone,omitempty"`
}

// FilterDefinition describes an exact-match filter control above a table.
type FilterDefinition struct {
	Key     string         `yaml:"key"     json:"key"`
	Label   string         `yaml:"label"   json:"label"`
	Options []StaticOption `yaml:"options" json:"options"`
}

// StaticOption is a label/value pair for dropdowns and filters.
type StaticOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// FormDefinition describes the record dialog of a section.
type FormDefinition struct {
	Titles       map[string]string `yaml:"titles"        json:"titles,omitempty"`
	SubmitLabels map[string]string `yaml:"submit_labels" json:"submit_labels,omitempty"`
	DeleteLabel  string            `yaml:"delete_label"  json:"delete_label,omitempty"`
	Fields       []FieldDefinition `yaml:"fields"        json:"fields"`
}

// FieldDefinition describes a single form field.
type FieldDefinition struct {
	Key         string                `yaml:"key"         json:"key"`
	Label       string                `yaml:"label"       json:"label"`
	Type        string                `yaml:"type"        json:"type"`
	Placeholder string                `yaml:"placeholder" json:"placeholder,omitempty"`
	Required    bool                  `yaml:"required"    json:"required,omitempty"`
	Options     []StaticOption        `yaml:"options"     json:"options,omitempty"`
	Min         *float64              `yaml:"min"         json:"min,omitempty"`
	Max         *float64              `yaml:"max"         json:"max,omitempty"`
	Rows        int                   `yaml:"rows"        json:"rows,omitempty"`
	Disabled    bool                  `yaml:"disabled"    json:"disabled,omitempty"`
	Hidden      bool                  `yaml:"hidden"      json:"hidden,omitempty"`
	HiddenIn    []string              `yaml:"hidden_in"   json:"hidden_in,omitempty"`
	Default     any                   `yaml:"default"     json:"default,omitempty"`
	Validation  *ValidationDefinition `yaml:"validation"  json:"validation,omitempty"`
	Widget      string                `yaml:"widget"      json:"widget,omitempty"`
}

// ValidationDefinition attaches a custom rule to a field. Either Validator
// names a registered rule or Pattern supplies a regular expression.
type ValidationDefinition struct {
	Validator string `yaml:"validator" json:"validator,omitempty"`
	Pattern   string `yaml:"pattern"   json:"pattern,omitempty"`
	Message   string `yaml:"message"   json:"message,omitempty"`
}

// ActionDefinition describes a table affordance (create button, edit or
// delete row action).
type ActionDefinition struct {
	ID           string                  `yaml:"id"           json:"id"`
	Label        string                  `yaml:"label"        json:"label"`
	Icon         string                  `yaml:"icon"         json:"icon,omitempty"`
	Capabilities []string                `yaml:"capabilities" json:"capabilities"`
	Confirmation *ConfirmationDefinition `yaml:"confirmation" json:"confirmation,omitempty"`
}

// ConfirmationDefinition describes a confirmation prompt shown before an
// action runs.
type ConfirmationDefinition struct {
	Title   string `yaml:"title"   json:"title"`
	Message string `yaml:"message" json:"message"`
	Confirm string `yaml:"confirm" json:"confirm"`
	Cancel  string `yaml:"cancel"  json:"cancel,omitempty"`
}

// Table action identifiers.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)
