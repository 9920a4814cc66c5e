package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/model"
)

// DefaultTTL is how long a submission is remembered when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Submission identifies one keyed submit.
type Submission struct {
	Subject string
	Section string
	Key     string
	// Input is what the client sent with the submit. Reusing a key with a
	// different input is a conflict.
	Input any
}

// Guard runs a submission at most once per idempotency key and replays the
// remembered response for repeats.
type Guard struct {
	store  IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewGuard creates a Guard on store. A non-positive ttl selects DefaultTTL.
func NewGuard(store IdempotencyStore, ttl time.Duration, logger *zap.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, ttl: ttl, logger: logger}
}

// Do runs submit unless sub was already accepted, in which case the earlier
// response is returned with replayed set. Without a key or store, submit
// always runs. Only successful responses are remembered; a rejected submit
// leaves the key free for the corrected retry.
func (g *Guard) Do(ctx context.Context, sub Submission, submit func(context.Context) (model.CommandResponse, error)) (resp model.CommandResponse, replayed bool, err error) {
	if g == nil || g.store == nil || sub.Key == "" {
		resp, err = submit(ctx)
		return resp, false, err
	}

	key := FormatIdempotencyKey(sub.Subject, sub.Section, sub.Key)
	fp := Fingerprint(sub.Input)

	cached, found, err := g.store.Check(ctx, key, fp)
	if err != nil {
		return model.CommandResponse{}, false, err
	}
	if found {
		return *cached, true, nil
	}

	resp, err = submit(ctx)
	if err != nil || !resp.Success {
		return resp, false, err
	}
	if err := g.store.Store(ctx, key, fp, resp, g.ttl); err != nil {
		// The submission itself went through.
		observability.LoggerFrom(ctx, g.logger).Warn("failed to remember submission",
			zap.String("section", sub.Section),
			zap.Error(err),
		)
	}
	return resp, false, nil
}

// Fingerprint hashes v's JSON encoding. Map keys are encoded in sorted
// order, so equal inputs hash equally.
func Fingerprint(v any) string {
	data, _ := json.Marshal(v)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
