package model

import "time"

// NavigationTree is the top-level navigation structure returned to the frontend.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is a single entry in the navigation menu.
type NavigationNode struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Icon    string `json:"icon"`
	Route   string `json:"route,omitempty"`
	HasData bool   `json:"has_data"`
}

// TableDescriptor is the resolved table metadata sent to the frontend.
type TableDescriptor struct {
	Section      string             `json:"section"`
	Title        string             `json:"title"`
	Columns      []ColumnDescriptor `json:"columns"`
	Filters      []FilterDescriptor `json:"filters,omitempty"`
	Searchable   bool               `json:"searchable"`
	PageSizes    []int              `json:"page_sizes"`
	CreateLabel  string             `json:"create_label,omitempty"`
	EmptyMessage string             `json:"empty_message"`
	RowClick     bool               `json:"row_click"`
	Actions      []ActionDescriptor `json:"actions,omitempty"`
	DataEndpoint string             `json:"data_endpoint"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
	Width    string `json:"width,omitempty"`
}

// FilterDescriptor describes a resolved filter control. The first option is
// always the "all" sentinel.
type FilterDescriptor struct {
	Key     string             `json:"key"`
	Label   string             `json:"label"`
	Options []OptionDescriptor `json:"options"`
}

// OptionDescriptor is a resolved option for dropdowns and filters.
type OptionDescriptor struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// ActionDescriptor is a resolved table action sent to the frontend.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Icon         string                  `json:"icon,omitempty"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
	Cancel  string `json:"cancel,omitempty"`
}

// TableResponse is the standardized response for a table view.
type TableResponse struct {
	Data TablePayload   `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// TablePayload is one rendered page of a table together with the view state
// that produced it.
type TablePayload struct {
	Rows         []RowDescriptor `json:"rows"`
	TotalCount   int             `json:"total_count"`
	Page         int             `json:"page"`
	PageSize     int             `json:"page_size"`
	TotalPages   int             `json:"total_pages"`
	Empty        bool            `json:"empty"`
	EmptyMessage string          `json:"empty_message,omitempty"`
	View         ViewDescriptor  `json:"view"`
}

// ViewDescriptor echoes the table view state.
type ViewDescriptor struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters"`
	SortKey string            `json:"sort_key,omitempty"`
	SortDir string            `json:"sort_dir,omitempty"`
}

// RowDescriptor is a single rendered table row.
type RowDescriptor struct {
	ID    string                    `json:"id"`
	Cells map[string]CellDescriptor `json:"cells"`
}

// CellDescriptor is a rendered table cell.
type CellDescriptor struct {
	Kind  string   `json:"kind"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
	More  int      `json:"more,omitempty"`
	Tone  string   `json:"tone,omitempty"`
}

// DialogDescriptor is the rendered state of a record dialog.
type DialogDescriptor struct {
	Section     string            `json:"section"`
	Title       string            `json:"title"`
	Mode        string            `json:"mode"`
	Open        bool              `json:"open"`
	RecordID    string            `json:"record_id,omitempty"`
	ReadOnly    bool              `json:"read_only"`
	SubmitLabel string            `json:"submit_label"`
	DeleteLabel string            `json:"delete_label,omitempty"`
	CanDelete   bool              `json:"can_delete"`
	Fields      []FieldDescriptor `json:"fields"`
	Errors      []FieldError      `json:"errors,omitempty"`
}

// FieldDescriptor is a rendered form field.
type FieldDescriptor struct {
	Key         string             `json:"key"`
	Label       string             `json:"label"`
	Type        string             `json:"type"`
	Control     string             `json:"control"`
	InputType   string             `json:"input_type,omitempty"`
	Placeholder string             `json:"placeholder,omitempty"`
	Required    bool               `json:"required"`
	Editable    bool               `json:"editable"`
	Options     []OptionDescriptor `json:"options,omitempty"`
	Min         *float64           `json:"min,omitempty"`
	Max         *float64           `json:"max,omitempty"`
	Rows        int                `json:"rows,omitempty"`
	Value       any                `json:"value"`
	Pending     string             `json:"pending,omitempty"`
	Error       string             `json:"error,omitempty"`
	Widget      any                `json:"widget,omitempty"`
}

// DialogResponse wraps a dialog for the frontend.
type DialogResponse struct {
	Data DialogDescriptor `json:"data"`
}

// CommandResponse is the response from a form submission or table action.
type CommandResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Result  map[string]any    `json:"result,omitempty"`
	Errors  []FieldError      `json:"errors,omitempty"`
	Dialog  *DialogDescriptor `json:"dialog,omitempty"`
}

// SearchResponse is the response from a global search query.
type SearchResponse struct {
	Data SearchPayload  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// SearchPayload contains the search results.
type SearchPayload struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
	Query      string         `json:"query"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle,omitempty"`
	Section  string  `json:"section"`
	Icon     string  `json:"icon,omitempty"`
	Route    string  `json:"route"`
	Score    float64 `json:"score"`
}

// LoginResponse is returned by a successful login. Landing is the section
// the shell opens first.
type LoginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	Landing   string    `json:"landing,omitempty"`
}
