package model

import "strings"

// CapabilitySet holds what a role may do. Capabilities read
// "<section>:<verb>", for example "orders:edit". A grant of "orders:*"
// covers every verb of the section and "*" covers everything.
type CapabilitySet map[string]bool

// NewCapabilitySet grants caps.
func NewCapabilitySet(caps ...string) CapabilitySet {
	cs := make(CapabilitySet, len(caps))
	for _, c := range caps {
		cs[c] = true
	}
	return cs
}

func (cs CapabilitySet) Has(capability string) bool {
	if cs[capability] || cs["*"] {
		return true
	}
	section, _, ok := strings.Cut(capability, ":")
	return ok && cs[section+":*"]
}

// HasAll is true for an empty list.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, c := range caps {
		if !cs.Has(c) {
			return false
		}
	}
	return true
}

// CapabilityResolver yields the capabilities of the caller of a request.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(role string)
}

// PolicyEvaluator is the source of role grants behind a resolver.
type PolicyEvaluator interface {
	ResolveCapabilities(role string) (CapabilitySet, error)
	Roles() []string
}
