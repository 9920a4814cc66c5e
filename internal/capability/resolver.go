// Package capability maps login roles to capability sets. Policies come
// from a YAML file or the embedded default, and resolved sets are cached.
package capability

import (
	"sync"
	"time"

	"github.com/pitabwire/repairdesk/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver with an in-memory cache keyed
// by role.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
	cache     map[string]cacheEntry
	onLookup  func(hit bool)
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
// A zero TTL disables caching.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// SetCacheObserver installs f, called on every Resolve with whether the
// cache answered. It must be called before the first Resolve.
func (r *Resolver) SetCacheObserver(f func(hit bool)) { r.onLookup = f }

// Resolve returns the capability set of the request's role. Results are
// cached for the configured TTL. Callers must not modify the returned set.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	if rctx == nil {
		return model.CapabilitySet{}, nil
	}
	key := rctx.Role

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && r.now().Before(entry.expires) {
		r.mu.RUnlock()
		r.observe(true)
		return entry.caps, nil
	}
	r.mu.RUnlock()
	r.observe(false)

	caps, err := r.evaluator.ResolveCapabilities(key)
	if err != nil {
		return nil, err
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[key] = cacheEntry{caps: caps, expires: r.now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return caps, nil
}

func (r *Resolver) observe(hit bool) {
	if r.onLookup != nil {
		r.onLookup(hit)
	}
}

// Invalidate clears the cached capabilities of role. An empty role clears
// the whole cache.
func (r *Resolver) Invalidate(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == "" {
		clear(r.cache)
		return
	}
	delete(r.cache, role)
}
