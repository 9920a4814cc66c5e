package metadata

import (
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/model"
)

// ActionProvider resolves a section's table actions into descriptors,
// dropping the ones caps do not grant.
type ActionProvider struct{}

// NewActionProvider creates a new ActionProvider.
func NewActionProvider() *ActionProvider {
	return &ActionProvider{}
}

// ResolveActions returns the allowed actions of s in declaration order. The
// result is never nil.
func (p *ActionProvider) ResolveActions(s *section.Section, caps model.CapabilitySet) []model.ActionDescriptor {
	result := []model.ActionDescriptor{}
	def := s.Definition()
	if def.Table == nil {
		return result
	}
	for _, action := range def.Table.Actions {
		if !s.Allowed(action.ID, caps) {
			continue
		}
		desc := model.ActionDescriptor{
			ID:    action.ID,
			Label: action.Label,
			Icon:  action.Icon,
		}
		if action.Confirmation != nil {
			desc.Confirmation = &model.ConfirmationDescriptor{
				Title:   action.Confirmation.Title,
				Message: action.Confirmation.Message,
				Confirm: action.Confirmation.Confirm,
				Cancel:  action.Confirmation.Cancel,
			}
		}
		result = append(result, desc)
	}
	return result
}
