// Package store holds the in-memory record collections behind the business
// sections. Each section owns exactly one Collection; the table and form
// engines only ever see copies of its records.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pitabwire/repairdesk/model"
)

// maxIDAttempts bounds retries when a generated ID collides with a stored one.
const maxIDAttempts = 8

// Collection is an ordered, mutex-guarded list of records keyed by idField.
// New records are prepended, so the natural order is newest first.
type Collection struct {
	mu      sync.RWMutex
	name    string
	idField string
	newID   IDGenerator
	rows    []model.Record
	version uint64
}

// NewCollection creates an empty collection. A nil generator falls back to
// the default alphabet and length.
func NewCollection(name, idField string, gen IDGenerator) *Collection {
	if idField == "" {
		idField = model.DefaultIDField
	}
	if gen == nil {
		gen = NewIDGenerator("", "", 0)
	}
	return &Collection{name: name, idField: idField, newID: gen}
}

// Name returns the owning section ID.
func (c *Collection) Name() string { return c.name }

// IDField returns the record key holding the identifier.
func (c *Collection) IDField() string { return c.idField }

// Seed appends fixture records in order. Records without an ID get a
// generated one; duplicate IDs are rejected.
func (c *Collection) Seed(fixtures []model.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, f := range fixtures {
		rec := f.Clone()
		if rec == nil {
			rec = model.Record{}
		}
		id := rec.ID(c.idField)
		if id == "" {
			var err error
			if id, err = c.uniqueIDLocked(); err != nil {
				return err
			}
			rec[c.idField] = id
		}
		if c.indexLocked(id) >= 0 {
			return fmt.Errorf("store: %s fixture %d: duplicate id %q", c.name, i, id)
		}
		c.rows = append(c.rows, rec)
	}
	c.version++
	return nil
}

// All returns a copy of every record in collection order.
func (c *Collection) All() []model.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Record, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a copy of the record with the given ID.
func (c *Collection) Get(_ context.Context, id string) (model.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexLocked(id)
	if i < 0 {
		return nil, c.notFound(id)
	}
	return c.rows[i].Clone(), nil
}

// Add stores a new record at the front of the collection and returns the
// stored copy. An empty ID is replaced by a generated one.
func (c *Collection) Add(_ context.Context, rec model.Record) (model.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := rec.Clone()
	if stored == nil {
		stored = model.Record{}
	}
	id := stored.ID(c.idField)
	if id == "" {
		var err error
		if id, err = c.uniqueIDLocked(); err != nil {
			return nil, err
		}
		stored[c.idField] = id
	} else if c.indexLocked(id) >= 0 {
		return nil, model.NewConflictError(fmt.Sprintf("%s %q already exists", c.name, id))
	}

	c.rows = slices.Insert(c.rows, 0, stored)
	c.version++
	return stored.Clone(), nil
}

// Replace merges patch over the stored record with the given ID. The ID
// itself cannot be changed.
func (c *Collection) Replace(_ context.Context, id string, patch model.Record) (model.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return nil, c.notFound(id)
	}
	merged := c.rows[i].Merge(patch)
	merged[c.idField] = c.rows[i][c.idField]
	c.rows[i] = merged
	c.version++
	return merged.Clone(), nil
}

// Remove deletes the record with the given ID.
func (c *Collection) Remove(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return c.notFound(id)
	}
	c.rows = slices.Delete(c.rows, i, i+1)
	c.version++
	return nil
}

// Len returns the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Version increases on every mutation.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Collection) indexLocked(id string) int {
	return slices.IndexFunc(c.rows, func(r model.Record) bool { return r.ID(c.idField) == id })
}

func (c *Collection) uniqueIDLocked() (string, error) {
	for range maxIDAttempts {
		id, err := c.newID()
		if err != nil {
			return "", err
		}
		if c.indexLocked(id) < 0 {
			return id, nil
		}
	}
	return "", model.NewConflictError(fmt.Sprintf("%s: no free id after %d attempts", c.name, maxIDAttempts))
}

func (c *Collection) notFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("%s %q not found", c.name, id))
}
