// Package events carries the queue-updated signal between the components
// that write the item store and the sync layer that mirrors it.
package events

import "sync"

// Bus distributes queue-updated notifications. Each subscriber owns a
// buffered channel of size one, so rapid emits coalesce into a single
// pending signal and Emit never blocks a writer on a slow consumer.
type Bus struct {
	mu     sync.Mutex
	subs   map[<-chan struct{}]chan struct{}
	closed bool
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[<-chan struct{}]chan struct{})}
}

// Subscribe registers a new listener. The returned channel receives one
// value per coalesced batch of emits until Unsubscribe or Close.
func (b *Bus) Subscribe() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = ch
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(sub)
	}
}

// Emit signals every subscriber that the queue changed. A subscriber with
// a signal already pending is skipped; the pending signal covers this emit.
func (b *Bus) Emit() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}

// Close tears down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = make(map[<-chan struct{}]chan struct{})
}
