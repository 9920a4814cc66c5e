package section

import (
	"fmt"

	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/store"
	"github.com/pitabwire/repairdesk/model"
)

// Registry holds every built section in navigation order.
type Registry struct {
	byID    map[string]*Section
	ordered []*Section
	stores  *store.Set
}

// Load builds a section for every definition in defs. Data sections get a
// store seeded with their fixtures, registered in the returned registry's
// store set.
func Load(defs *definition.Registry, catalog *Catalog, opts Options) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Section), stores: store.NewSet()}
	for _, def := range defs.All() {
		var coll *store.Collection
		if def.HasData() {
			coll = store.NewCollection(def.Section, def.Entity.IDField, store.GeneratorFor(def.Entity.ID))
			if err := coll.Seed(fixtures(def)); err != nil {
				return nil, err
			}
			if err := r.stores.Register(coll); err != nil {
				return nil, err
			}
		}
		s, err := Build(def, catalog, coll, opts)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byID[s.ID()]; dup {
			return nil, fmt.Errorf("section %q defined twice", s.ID())
		}
		r.byID[s.ID()] = s
		r.ordered = append(r.ordered, s)
	}
	return r, nil
}

func fixtures(def model.SectionDefinition) []model.Record {
	out := make([]model.Record, len(def.Fixtures))
	for i, f := range def.Fixtures {
		out[i] = model.Record(f)
	}
	return out
}

// Get returns a section by ID.
func (r *Registry) Get(id string) (*Section, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns every section in navigation order.
func (r *Registry) All() []*Section {
	return append([]*Section(nil), r.ordered...)
}

// Visible returns the sections caps may list, in navigation order.
func (r *Registry) Visible(caps model.CapabilitySet) []*Section {
	var out []*Section
	for _, s := range r.ordered {
		if s.Visible(caps) {
			out = append(out, s)
		}
	}
	return out
}

// Stores returns the store set backing the data sections.
func (r *Registry) Stores() *store.Set { return r.stores }
