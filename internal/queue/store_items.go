package queue

import (
	"context"
	"fmt"
	"time"
)

// Enqueue persists a new pending item for payload and returns it.
func (s *Store) Enqueue(ctx context.Context, payload Payload) (*Item, error) {
	item := NewItem(payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.loadPartition(ctx, partitionActive)
	if err != nil {
		return nil, err
	}
	active = append(active, item)
	if err := s.savePartition(ctx, partitionActive, active); err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns the item with the given local identifier from whichever
// partition currently holds it.
func (s *Store) Get(ctx context.Context, localID string) (*Item, error) {
	active, err := s.loadPartition(ctx, partitionActive)
	if err != nil {
		return nil, err
	}
	for _, item := range active {
		if item.LocalID == localID {
			return item, nil
		}
	}
	completed, err := s.loadPartition(ctx, partitionCompleted)
	if err != nil {
		return nil, err
	}
	for _, item := range completed {
		if item.LocalID == localID {
			return item, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateItem replaces the stored copy of item in the active partition. The
// full partition is rewritten so the durable state is never ahead of or
// behind the caller's view.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.loadPartition(ctx, partitionActive)
	if err != nil {
		return err
	}
	for idx, existing := range active {
		if existing.LocalID == item.LocalID {
			active[idx] = item
			return s.savePartition(ctx, partitionActive, active)
		}
	}
	return ErrNotFound
}

// MoveToCompleted removes the item from the active partition and appends it
// to the completed partition with a completion timestamp. Re-applying after
// a partial failure is safe: an item already archived is not duplicated and
// a leftover active copy is simply removed.
func (s *Store) MoveToCompleted(ctx context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.loadPartition(ctx, partitionActive)
	if err != nil {
		return err
	}

	var moved *Item
	remaining := make([]*Item, 0, len(active))
	for _, item := range active {
		if item.LocalID == localID {
			moved = item
			continue
		}
		remaining = append(remaining, item)
	}

	completed, err := s.loadPartition(ctx, partitionCompleted)
	if err != nil {
		return err
	}
	alreadyArchived := false
	for _, item := range completed {
		if item.LocalID == localID {
			alreadyArchived = true
			break
		}
	}

	if moved == nil && !alreadyArchived {
		return ErrNotFound
	}

	if moved != nil && !alreadyArchived {
		if moved.CompletedAt == nil {
			now := time.Now().UTC()
			moved.CompletedAt = &now
		}
		completed = append(completed, moved)
		// Archive first so a crash between the two writes leaves the item
		// recoverable in both partitions rather than in neither.
		if err := s.savePartition(ctx, partitionCompleted, completed); err != nil {
			return err
		}
	}

	return s.savePartition(ctx, partitionActive, remaining)
}

// PurgeExpired drops completed items older than retention. A no-op when
// nothing qualifies.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed, err := s.loadPartition(ctx, partitionCompleted)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	kept := make([]*Item, 0, len(completed))
	for _, item := range completed {
		reference := item.CreatedAt
		if item.CompletedAt != nil {
			reference = *item.CompletedAt
		}
		if reference.Before(cutoff) {
			continue
		}
		kept = append(kept, item)
	}

	removed := len(completed) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.savePartition(ctx, partitionCompleted, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveEverywhere deletes the item from whichever partition holds it.
// Returns false when the identifier is unknown.
func (s *Store) RemoveEverywhere(ctx context.Context, localID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for _, partition := range []string{partitionActive, partitionCompleted} {
		items, err := s.loadPartition(ctx, partition)
		if err != nil {
			return removed, err
		}
		kept := make([]*Item, 0, len(items))
		for _, item := range items {
			if item.LocalID == localID {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) != len(items) {
			if err := s.savePartition(ctx, partition, kept); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// Stats returns a count of active items grouped by overall status, plus the
// size of the completed partition under StatusCompleted.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	active, err := s.loadPartition(ctx, partitionActive)
	if err != nil {
		return nil, err
	}
	completed, err := s.loadPartition(ctx, partitionCompleted)
	if err != nil {
		return nil, err
	}

	stats := make(map[Status]int)
	for _, item := range active {
		stats[item.Status]++
	}
	if len(completed) > 0 {
		stats[StatusCompleted] += len(completed)
	}
	return stats, nil
}
