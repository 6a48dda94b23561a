package testsupport

import (
	"context"
	"testing"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Payload returns a minimal valid submission payload for tests.
func Payload(action, account string) queue.Payload {
	return queue.Payload{
		ActionType:     action,
		AccountAddress: account,
		CollectorID:    "collector-1",
	}
}

// Enqueue stores a fresh item built from a default payload.
func Enqueue(t testing.TB, store *queue.Store, action, account string) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), Payload(action, account))
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
