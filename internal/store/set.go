package store

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Set is the collection of every section's store, keyed by section ID.
type Set struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{collections: make(map[string]*Collection)}
}

// Register adds a collection under its name.
func (s *Set) Register(c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[c.Name()]; exists {
		return fmt.Errorf("store: collection %q already registered", c.Name())
	}
	s.collections[c.Name()] = c
	return nil
}

// Collection returns the store of a section.
func (s *Set) Collection(section string) (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[section]
	return c, ok
}

// Names returns the registered section IDs in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.collections))
}

// Sizes returns the record count of every collection.
func (s *Set) Sizes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.collections))
	for name, c := range s.collections {
		out[name] = c.Len()
	}
	return out
}
