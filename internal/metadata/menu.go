// Package metadata turns built sections into the descriptors the frontend
// renders: the navigation menu, table descriptors and pages, and record
// dialogs.
package metadata

import (
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/model"
)

// MenuProvider builds a NavigationTree from sections filtered by
// capabilities.
type MenuProvider struct {
	sections *section.Registry
}

// NewMenuProvider creates a MenuProvider backed by the given sections.
func NewMenuProvider(sections *section.Registry) *MenuProvider {
	return &MenuProvider{sections: sections}
}

// GetMenu returns the sections caps may see, in navigation order. A role
// with no visible section gets an empty, non-nil item list.
func (p *MenuProvider) GetMenu(caps model.CapabilitySet) model.NavigationTree {
	visible := p.sections.Visible(caps)
	nodes := make([]model.NavigationNode, 0, len(visible))
	for _, s := range visible {
		def := s.Definition()
		nodes = append(nodes, model.NavigationNode{
			ID:      s.ID(),
			Label:   def.Navigation.Label,
			Icon:    def.Navigation.Icon,
			Route:   def.Navigation.Route,
			HasData: s.HasData(),
		})
	}
	return model.NavigationTree{Items: nodes}
}

// Landing returns the section a freshly logged-in user lands on: the first
// visible section, or "" when there is none.
func (p *MenuProvider) Landing(caps model.CapabilitySet) string {
	if visible := p.sections.Visible(caps); len(visible) > 0 {
		return visible[0].ID()
	}
	return ""
}
