package command

import (
	"context"
	"errors"
	"testing"

	"github.com/pitabwire/repairdesk/model"
)

type countingSubmit struct {
	calls int
	resp  model.CommandResponse
	err   error
}

func (c *countingSubmit) run(context.Context) (model.CommandResponse, error) {
	c.calls++
	return c.resp, c.err
}

func newOrderSubmission(key string, input map[string]any) Submission {
	return Submission{Subject: "operator", Section: "orders", Key: key, Input: input}
}

func TestGuard_replaysAcceptedSubmission(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	g := NewGuard(store, 0, nil)
	submit := &countingSubmit{resp: createdOrder()}
	input := map[string]any{"clientName": "Anna", "price": 1500.0}

	first, replayed, err := g.Do(context.Background(), newOrderSubmission("k1", input), submit.run)
	if err != nil || replayed {
		t.Fatalf("first Do() replayed=%v err=%v", replayed, err)
	}
	second, replayed, err := g.Do(context.Background(), newOrderSubmission("k1", input), submit.run)
	if err != nil {
		t.Fatalf("second Do() error: %v", err)
	}
	if !replayed {
		t.Error("second Do() should replay")
	}
	if submit.calls != 1 {
		t.Errorf("submit ran %d times, want 1", submit.calls)
	}
	if second.Result["id"] != first.Result["id"] {
		t.Errorf("replayed id = %v, want %v", second.Result["id"], first.Result["id"])
	}
}

func TestGuard_conflictOnDifferentInput(t *testing.T) {
	g := NewGuard(NewMemoryIdempotencyStore(), 0, nil)
	submit := &countingSubmit{resp: createdOrder()}

	_, _, _ = g.Do(context.Background(), newOrderSubmission("k1", map[string]any{"price": 1.0}), submit.run)
	_, _, err := g.Do(context.Background(), newOrderSubmission("k1", map[string]any{"price": 2.0}), submit.run)
	if !isConflict(err) {
		t.Errorf("Do() error = %v, want CONFLICT", err)
	}
	if submit.calls != 1 {
		t.Errorf("submit ran %d times, want 1", submit.calls)
	}
}

func TestGuard_rejectedSubmitIsNotRemembered(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	g := NewGuard(store, 0, nil)
	submit := &countingSubmit{resp: model.CommandResponse{Success: false}}

	_, _, _ = g.Do(context.Background(), newOrderSubmission("k1", nil), submit.run)
	if store.Len() != 0 {
		t.Fatalf("Len() = %d after rejected submit, want 0", store.Len())
	}

	submit.resp = createdOrder()
	_, replayed, err := g.Do(context.Background(), newOrderSubmission("k1", nil), submit.run)
	if err != nil || replayed || submit.calls != 2 {
		t.Errorf("retry replayed=%v err=%v calls=%d", replayed, err, submit.calls)
	}
}

func TestGuard_withoutKeyAlwaysRuns(t *testing.T) {
	g := NewGuard(NewMemoryIdempotencyStore(), 0, nil)
	submit := &countingSubmit{resp: createdOrder()}
	for range 3 {
		_, replayed, _ := g.Do(context.Background(), newOrderSubmission("", nil), submit.run)
		if replayed {
			t.Error("keyless submit replayed")
		}
	}
	if submit.calls != 3 {
		t.Errorf("submit ran %d times, want 3", submit.calls)
	}

	var nilGuard *Guard
	if _, _, err := nilGuard.Do(context.Background(), newOrderSubmission("k", nil), submit.run); err != nil {
		t.Errorf("nil guard Do() error: %v", err)
	}
}

func TestGuard_scopedPerSubject(t *testing.T) {
	g := NewGuard(NewMemoryIdempotencyStore(), 0, nil)
	submit := &countingSubmit{resp: createdOrder()}

	_, _, _ = g.Do(context.Background(), Submission{Subject: "admin", Section: "orders", Key: "k"}, submit.run)
	_, replayed, err := g.Do(context.Background(), Submission{Subject: "manager", Section: "orders", Key: "k"}, submit.run)
	if err != nil || replayed {
		t.Errorf("other subject replayed=%v err=%v", replayed, err)
	}
}

func TestGuard_submitError(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	g := NewGuard(store, 0, nil)
	boom := errors.New("boom")
	submit := &countingSubmit{err: boom}

	_, _, err := g.Do(context.Background(), newOrderSubmission("k1", nil), submit.run)
	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want boom", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestFingerprint_keyOrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]any{"a": 1, "b": "x"})
	b := Fingerprint(map[string]any{"b": "x", "a": 1})
	if a != b {
		t.Error("fingerprints differ for equal maps")
	}
	if a == Fingerprint(map[string]any{"a": 2, "b": "x"}) {
		t.Error("fingerprints equal for different maps")
	}
}
