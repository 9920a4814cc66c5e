package definition

import (
	"cmp"
	"crypto/sha256"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/repairdesk/model"
)

// snapshot is an immutable collection of all definitions indexed by section.
type snapshot struct {
	sections map[string]model.SectionDefinition
	ordered  []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.SectionDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. A later definition of the same section wins.
func (r *Registry) Replace(defs []model.SectionDefinition) {
	s := &snapshot{
		sections: make(map[string]model.SectionDefinition, len(defs)),
	}

	var checksumParts []string
	for _, def := range defs {
		s.sections[def.Section] = def
		checksumParts = append(checksumParts, def.Checksum)
	}

	for id := range s.sections {
		s.ordered = append(s.ordered, id)
	}
	slices.SortFunc(s.ordered, func(a, b string) int {
		return cmp.Or(
			cmp.Compare(s.sections[a].Navigation.Order, s.sections[b].Navigation.Order),
			cmp.Compare(a, b),
		)
	})

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the definition of a section.
func (r *Registry) Get(section string) (model.SectionDefinition, bool) {
	d, ok := r.current().sections[section]
	return d, ok
}

// All returns every definition in navigation order.
func (r *Registry) All() []model.SectionDefinition {
	s := r.current()
	defs := make([]model.SectionDefinition, 0, len(s.ordered))
	for _, id := range s.ordered {
		defs = append(defs, s.sections[id])
	}
	return defs
}

// DataSections returns the definitions that list records, in navigation order.
func (r *Registry) DataSections() []model.SectionDefinition {
	var defs []model.SectionDefinition
	for _, d := range r.All() {
		if d.HasData() {
			defs = append(defs, d)
		}
	}
	return defs
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
