package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/repairdesk/model"
)

// ErrStoreUnavailable is returned while the breaker of a store is open.
var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// BreakerState is the state of a BreakerStore.
type BreakerState int

const (
	// BreakerClosed passes every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets probe calls through; one failure reopens.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerStore guards a remote IdempotencyStore. After threshold
// consecutive failures it stops calling the store for cooldown, so an
// unreachable Redis costs one fast error per keyed submit instead of a dial
// with retries. A CONFLICT answer is a working store and counts as success.
type BreakerStore struct {
	next      IdempotencyStore
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	onChange func(BreakerState)
}

// NewBreakerStore wraps next. A threshold below 1 defaults to 5 and a
// non-positive cooldown to 30s.
func NewBreakerStore(next IdempotencyStore, threshold int, cooldown time.Duration) *BreakerStore {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &BreakerStore{next: next, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// OnStateChange registers fn to be called, under the breaker's lock, on
// every transition.
func (b *BreakerStore) OnStateChange(fn func(BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Check implements IdempotencyStore.
func (b *BreakerStore) Check(ctx context.Context, key, fingerprint string) (*model.CommandResponse, bool, error) {
	if err := b.allow(); err != nil {
		return nil, false, err
	}
	result, found, err := b.next.Check(ctx, key, fingerprint)
	b.record(err)
	return result, found, err
}

// Store implements IdempotencyStore.
func (b *BreakerStore) Store(ctx context.Context, key, fingerprint string, result model.CommandResponse, ttl time.Duration) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.next.Store(ctx, key, fingerprint, result, ttl)
	b.record(err)
	return err
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (b *BreakerStore) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

func (b *BreakerStore) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	if b.state == BreakerOpen {
		return ErrStoreUnavailable
	}
	return nil
}

func (b *BreakerStore) record(err error) {
	failed := err != nil && !isEnvelope(err)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !failed:
		b.failures = 0
		b.transition(BreakerClosed)
	case b.state == BreakerHalfOpen:
		b.trip()
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

// expire must be called with the lock held.
func (b *BreakerStore) expire() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.transition(BreakerHalfOpen)
	}
}

// trip must be called with the lock held.
func (b *BreakerStore) trip() {
	b.openedAt = b.now()
	b.failures = 0
	b.transition(BreakerOpen)
}

// transition must be called with the lock held.
func (b *BreakerStore) transition(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

// isEnvelope reports whether err is an answer from a healthy store, such as
// a CONFLICT for a reused key.
func isEnvelope(err error) bool {
	var ee *model.ErrorEnvelope
	return errors.As(err, &ee)
}
