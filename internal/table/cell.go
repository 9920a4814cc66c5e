package table

import "github.com/pitabwire/repairdesk/model"

// CellKind tells the frontend how to draw a cell.
type CellKind string

const (
	CellText   CellKind = "text"
	CellBool   CellKind = "bool"
	CellBadges CellKind = "badges"
	CellBadge  CellKind = "badge"
	CellEmpty  CellKind = "empty"
)

// maxBadges is how many list elements a cell shows before collapsing the
// rest into a "+N" counter.
const maxBadges = 3

// Cell is a rendered table cell.
type Cell struct {
	Kind  CellKind
	Text  string
	Items []string
	More  int
	Tone  string
}

// RenderFunc is a custom cell renderer. It receives the raw field value and
// the whole row and has full control over the result.
type RenderFunc func(value any, row model.Record) Cell

// Text returns a plain text cell.
func Text(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

// Badge returns a single badge cell with a tone hint ("success", "warning").
func Badge(label, tone string) Cell {
	return Cell{Kind: CellBadge, Text: label, Tone: tone}
}

// Labels holds the static strings used by default cell rendering.
type Labels struct {
	Yes         string
	No          string
	Placeholder string
}

// DefaultLabels are used for any Labels field left empty.
var DefaultLabels = Labels{Yes: "Yes", No: "No", Placeholder: "—"}

func (l Labels) withDefaults() Labels {
	if l.Yes == "" {
		l.Yes = DefaultLabels.Yes
	}
	if l.No == "" {
		l.No = DefaultLabels.No
	}
	if l.Placeholder == "" {
		l.Placeholder = DefaultLabels.Placeholder
	}
	return l
}

// RenderCell renders one cell of row for col.
func (t *Table) RenderCell(col Column, row model.Record) Cell {
	value := row[col.Key]
	if col.Render != nil {
		return col.Render(value, row)
	}
	return t.defaultCell(value)
}

// RenderRow renders every column of row in column order.
func (t *Table) RenderRow(row model.Record) []Cell {
	cells := make([]Cell, len(t.columns))
	for i, col := range t.columns {
		cells[i] = t.RenderCell(col, row)
	}
	return cells
}

func (t *Table) defaultCell(value any) Cell {
	if b, ok := value.(bool); ok {
		text := t.labels.No
		if b {
			text = t.labels.Yes
		}
		return Cell{Kind: CellBool, Text: text}
	}
	if items, ok := listItems(value); ok {
		c := Cell{Kind: CellBadges}
		if len(items) > maxBadges {
			c.Items = append([]string(nil), items[:maxBadges]...)
			c.More = len(items) - maxBadges
		} else {
			c.Items = append([]string(nil), items...)
		}
		return c
	}
	s := Stringify(value)
	if s == "" {
		return Cell{Kind: CellEmpty, Text: t.labels.Placeholder}
	}
	return Text(s)
}
