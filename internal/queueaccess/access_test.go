package queueaccess

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func newAccess(t *testing.T) (*Access, *queue.Store, *events.Bus) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return New(store, bus, logging.NewNop()), store, bus
}

func TestEnqueueEmitsChangeEvent(t *testing.T) {
	access, _, bus := newAccess(t)
	updates := bus.Subscribe()

	item, err := access.Enqueue(context.Background(), testsupport.Payload("pickup", "0xabc"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.LocalID == "" {
		t.Fatal("item has no local id")
	}
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no change event after enqueue")
	}
}

func TestRetryResetsFailedStatesAndDebounce(t *testing.T) {
	access, store, _ := newAccess(t)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "pickup", "0xabc")
	now := time.Now().UTC()
	item.Ledger.RecordFailure("timeout", 3, now)
	item.Proof.RecordOffline()
	item.MarkAttempt(now)
	item.RecomputeStatus()
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	updated, err := access.Retry(ctx, item.LocalID, "", false)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if updated.Ledger.Status != queue.ServicePending || updated.Proof.Status != queue.ServicePending {
		t.Fatalf("states not reset: ledger=%s proof=%s", updated.Ledger.Status, updated.Proof.Status)
	}
	if updated.LastAttemptAt != nil {
		t.Fatal("debounce window not cleared")
	}
	// A plain retry keeps accumulated counters.
	if updated.Ledger.InitialRetryCount != 1 {
		t.Fatalf("InitialRetryCount = %d", updated.Ledger.InitialRetryCount)
	}
}

func TestRetrySingleService(t *testing.T) {
	access, store, _ := newAccess(t)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "pickup", "0xabc")
	now := time.Now().UTC()
	item.Ledger.RecordFailure("timeout", 3, now)
	item.Proof.RecordFailure("timeout", 3, now)
	item.RecomputeStatus()
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	updated, err := access.Retry(ctx, item.LocalID, queue.ServiceLedger, false)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if updated.Ledger.Status != queue.ServicePending {
		t.Fatalf("ledger status = %s", updated.Ledger.Status)
	}
	if updated.Proof.Status != queue.ServiceFailed {
		t.Fatalf("proof status changed: %s", updated.Proof.Status)
	}

	if _, err := access.Retry(ctx, item.LocalID, "bogus", false); err == nil {
		t.Fatal("unknown service accepted")
	}
}

func TestRetryExhaustedRequiresForce(t *testing.T) {
	access, store, _ := newAccess(t)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "pickup", "0xabc")
	item.CreatedAt = time.Now().UTC().Add(-10 * 24 * time.Hour)
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		item.Ledger.RecordFailure("timeout", 3, now)
	}
	item.Exhausted = true
	item.Status = queue.StatusFailed
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	if _, err := access.Retry(ctx, item.LocalID, "", false); !errors.Is(err, ErrRetryLocked) {
		t.Fatalf("Retry without force: %v, want ErrRetryLocked", err)
	}

	updated, err := access.Retry(ctx, item.LocalID, "", true)
	if err != nil {
		t.Fatalf("forced Retry: %v", err)
	}
	if updated.Exhausted {
		t.Fatal("Exhausted flag survived a forced retry")
	}
	if updated.Ledger.InitialRetryCount != 0 || updated.Ledger.SlowRetryCount != 0 || updated.Ledger.EnteredSlowModeAt != nil {
		t.Fatalf("retry budget not restarted: %+v", updated.Ledger)
	}
	if time.Since(updated.CreatedAt) > time.Minute {
		t.Fatal("age clock not restarted; item would re-exhaust immediately")
	}
}

func TestClearRequiresCompletionOrAcknowledgement(t *testing.T) {
	access, store, _ := newAccess(t)
	ctx := context.Background()

	pending := testsupport.Enqueue(t, store, "pickup", "0xabc")
	if err := access.Clear(ctx, pending.LocalID, false); !errors.Is(err, ErrNotClearable) {
		t.Fatalf("clear pending: %v, want ErrNotClearable", err)
	}

	exhausted := testsupport.Enqueue(t, store, "pickup", "0xdef")
	exhausted.Exhausted = true
	exhausted.Status = queue.StatusFailed
	if err := store.UpdateItem(ctx, exhausted); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if err := access.Clear(ctx, exhausted.LocalID, false); !errors.Is(err, ErrNotClearable) {
		t.Fatalf("clear exhausted unacknowledged: %v", err)
	}
	if err := access.Clear(ctx, exhausted.LocalID, true); err != nil {
		t.Fatalf("clear exhausted acknowledged: %v", err)
	}

	done := testsupport.Enqueue(t, store, "pickup", "0x123")
	if err := store.MoveToCompleted(ctx, done.LocalID); err != nil {
		t.Fatalf("MoveToCompleted: %v", err)
	}
	if err := access.Clear(ctx, done.LocalID, false); err != nil {
		t.Fatalf("clear completed: %v", err)
	}
	if _, err := store.Get(ctx, done.LocalID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("cleared item still stored: %v", err)
	}
}

func TestPurgeCompletedDelegatesRetention(t *testing.T) {
	access, store, _ := newAccess(t)
	ctx := context.Background()

	item := testsupport.Enqueue(t, store, "pickup", "0xabc")
	if err := store.MoveToCompleted(ctx, item.LocalID); err != nil {
		t.Fatalf("MoveToCompleted: %v", err)
	}

	removed, err := access.PurgeCompleted(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeCompleted: %v", err)
	}
	if removed != 0 {
		t.Fatalf("fresh archive purged %d items", removed)
	}

	removed, err = access.PurgeCompleted(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeCompleted zero retention: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}
