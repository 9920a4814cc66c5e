// Package command deduplicates form submissions that carry an idempotency key.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/repairdesk/model"
)

// IdempotencyStore remembers the response of a submission by key.
// Keys are built with FormatIdempotencyKey.
type IdempotencyStore interface {
	// Check returns the remembered response for key. found reports whether
	// the key is known; a known key whose fingerprint differs yields a
	// CONFLICT envelope.
	Check(ctx context.Context, key, fingerprint string) (result *model.CommandResponse, found bool, err error)

	// Store remembers result under key for ttl.
	Store(ctx context.Context, key, fingerprint string, result model.CommandResponse, ttl time.Duration) error
}

type idempotencyEntry struct {
	Fingerprint string                `json:"fingerprint"`
	Result      model.CommandResponse `json:"result"`
}

func (e idempotencyEntry) match(key, fingerprint string) (*model.CommandResponse, bool, error) {
	if e.Fingerprint != fingerprint {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q was already used for a different submission", key),
		)
	}
	result := e.Result
	return &result, true, nil
}

// --- memory ---

// MemoryIdempotencyStore keeps entries in process memory. Expired entries
// are dropped when read or by Sweep.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memEntry
}

type memEntry struct {
	data      idempotencyEntry
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates an empty in-memory store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		now:     time.Now,
		entries: make(map[string]memEntry),
	}
}

// SetClock replaces the time source used for expiry.
func (s *MemoryIdempotencyStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Check implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Check(_ context.Context, key, fingerprint string) (*model.CommandResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return entry.data.match(key, fingerprint)
}

// Store implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Store(_ context.Context, key, fingerprint string, result model.CommandResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{
		data:      idempotencyEntry{Fingerprint: fingerprint, Result: result},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryIdempotencyStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- redis ---

// RedisIdempotencyStore keeps entries in Redis as JSON with a native TTL,
// so several server instances share one view of submitted keys.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

// NewRedisIdempotencyStore creates a store on client.
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Check implements IdempotencyStore.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key, fingerprint string) (*model.CommandResponse, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry idempotencyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode idempotency entry %q: %w", key, err)
	}
	return entry.match(key, fingerprint)
}

// Store implements IdempotencyStore.
func (s *RedisIdempotencyStore) Store(ctx context.Context, key, fingerprint string, result model.CommandResponse, ttl time.Duration) error {
	data, err := json.Marshal(idempotencyEntry{Fingerprint: fingerprint, Result: result})
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// FormatIdempotencyKey scopes a client key to the user and the section the
// submission targets, so two users cannot collide on the same key.
func FormatIdempotencyKey(subject, section, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", subject, section, key)
}
