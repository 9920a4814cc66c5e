package metadata

import (
	"fmt"

	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// allLabel labels the filter option that removes a filter.
const allLabel = "All"

// PageProvider resolves section tables into descriptors and rendered pages.
type PageProvider struct {
	sections *section.Registry
	actions  *ActionProvider
}

// NewPageProvider creates a PageProvider backed by the given sections.
func NewPageProvider(sections *section.Registry, actions *ActionProvider) *PageProvider {
	return &PageProvider{sections: sections, actions: actions}
}

// Section returns the section id if caps may see it. The error is a
// NOT_FOUND or FORBIDDEN envelope.
func (p *PageProvider) Section(caps model.CapabilitySet, id string) (*section.Section, error) {
	s, ok := p.sections.Get(id)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("section %q not found", id))
	}
	if !s.Visible(caps) {
		return nil, model.NewForbiddenError(fmt.Sprintf("insufficient capabilities for section %q", id))
	}
	return s, nil
}

// DataSection is Section restricted to sections that list records.
func (p *PageProvider) DataSection(caps model.CapabilitySet, id string) (*section.Section, error) {
	s, err := p.Section(caps, id)
	if err != nil {
		return nil, err
	}
	if !s.HasData() {
		return nil, model.NewNotFoundError(fmt.Sprintf("section %q has no table", id))
	}
	return s, nil
}

// GetTable resolves the table descriptor of section id for caps.
func (p *PageProvider) GetTable(caps model.CapabilitySet, id string) (model.TableDescriptor, error) {
	s, err := p.DataSection(caps, id)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	return p.describe(s, caps), nil
}

func (p *PageProvider) describe(s *section.Section, caps model.CapabilitySet) model.TableDescriptor {
	tbl := s.Table()
	def := s.Definition()
	desc := model.TableDescriptor{
		Section:      s.ID(),
		Title:        def.Title,
		Searchable:   tbl.Searchable(),
		PageSizes:    tbl.PageSizes(),
		EmptyMessage: tbl.EmptyMessage(),
		Actions:      p.actions.ResolveActions(s, caps),
		DataEndpoint: fmt.Sprintf("/ui/sections/%s/rows", s.ID()),
	}
	if desc.Title == "" {
		desc.Title = def.Navigation.Label
	}
	for _, a := range desc.Actions {
		if a.ID == model.ActionCreate {
			desc.CreateLabel = tbl.CreateLabel()
		}
	}

	desc.RowClick = s.RowClickMode(caps) != ""

	for _, col := range tbl.Columns() {
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Key:      col.Key,
			Label:    col.Label,
			Sortable: col.Sortable,
			Width:    col.Width,
		})
	}
	for _, f := range tbl.Filters() {
		fd := model.FilterDescriptor{
			Key:     f.Key,
			Label:   f.Label,
			Options: []model.OptionDescriptor{{Label: allLabel, Value: table.AllValue}},
		}
		for _, o := range f.Options {
			fd.Options = append(fd.Options, model.OptionDescriptor{Label: o.Label, Value: o.Value})
		}
		desc.Filters = append(desc.Filters, fd)
	}
	return desc
}

// Page renders the page of s's records shown under v.
func (p *PageProvider) Page(s *section.Section, v *table.View) model.TablePayload {
	tbl := s.Table()
	page := tbl.Apply(s.Rows(), v)

	payload := model.TablePayload{
		Rows:       make([]model.RowDescriptor, 0, len(page.Rows)),
		TotalCount: page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		Empty:      page.Empty(),
		View:       describeView(v),
	}
	if payload.Empty {
		payload.EmptyMessage = tbl.EmptyMessage()
	}

	columns := tbl.Columns()
	for _, row := range page.Rows {
		cells := tbl.RenderRow(row)
		rd := model.RowDescriptor{
			ID:    row.ID(tbl.IDField()),
			Cells: make(map[string]model.CellDescriptor, len(cells)),
		}
		for i, c := range cells {
			rd.Cells[columns[i].Key] = CellDescriptor(c)
		}
		payload.Rows = append(payload.Rows, rd)
	}
	return payload
}

// CellDescriptor converts a rendered cell for the wire.
func CellDescriptor(c table.Cell) model.CellDescriptor {
	return model.CellDescriptor{
		Kind:  string(c.Kind),
		Text:  c.Text,
		Items: c.Items,
		More:  c.More,
		Tone:  c.Tone,
	}
}

func describeView(v *table.View) model.ViewDescriptor {
	key, dir := v.Sort()
	return model.ViewDescriptor{
		Query:   v.Query(),
		Filters: v.Filters(),
		SortKey: key,
		SortDir: string(dir),
	}
}
