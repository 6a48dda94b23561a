// Package syncer maintains the in-memory mirror of the active queue that
// UI consumers read. The mirror never mutates items in place: every
// queue-updated event triggers a wholesale reload from the item store, so
// durable state remains the single source of truth.
package syncer

import (
	"context"
	"log/slog"
	"sync"

	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// Mirror is the read-mostly cache of the active partition.
type Mirror struct {
	store  *queue.Store
	bus    *events.Bus
	logger *slog.Logger

	mu    sync.RWMutex
	items []*queue.Item

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New constructs a mirror and primes it with the current active items.
func New(ctx context.Context, store *queue.Store, bus *events.Bus, logger *slog.Logger) (*Mirror, error) {
	m := &Mirror{
		store:  store,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "syncer"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	go m.watch()
	return m, nil
}

// Snapshot returns a copy of the mirrored active items.
func (m *Mirror) Snapshot() []*queue.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make([]*queue.Item, len(m.items))
	copy(cp, m.items)
	return cp
}

// Reload replaces the mirror contents from the item store.
func (m *Mirror) Reload(ctx context.Context) error {
	items, err := m.store.LoadActive(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

// Close detaches the mirror from the bus and stops its refresh loop.
func (m *Mirror) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

func (m *Mirror) watch() {
	defer close(m.done)

	updates := m.bus.Subscribe()
	defer m.bus.Unsubscribe(updates)

	for {
		select {
		case <-m.stop:
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := m.Reload(context.Background()); err != nil {
				m.logger.Warn("mirror reload failed; snapshot is stale until the next queue update",
					logging.Error(err),
				)
			}
		}
	}
}
