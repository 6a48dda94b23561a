// Package queueaccess is the operation surface shared by the CLI commands
// and the daemon: enqueue, inspection, manual retry, and removal, all on
// top of the durable store, with change notifications for live views.
package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// ErrRetryLocked is returned when an item that exhausted its retry age is
// retried without the force flag.
var ErrRetryLocked = errors.New("item exhausted its retry window; use force to re-arm it")

// ErrNotClearable is returned when removal preconditions are not met.
var ErrNotClearable = errors.New("item is not clearable")

// Access wraps a store with the user-facing queue operations.
type Access struct {
	store  *queue.Store
	bus    *events.Bus
	logger *slog.Logger
}

// New builds an Access. The bus may be shared with a running scheduler;
// every mutation emits one change event on it.
func New(store *queue.Store, bus *events.Bus, logger *slog.Logger) *Access {
	return &Access{
		store:  store,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "queueaccess"),
	}
}

// Enqueue stores a new submission and reports it for display.
func (a *Access) Enqueue(ctx context.Context, payload queue.Payload) (*queue.Item, error) {
	item, err := a.store.Enqueue(ctx, payload)
	if err != nil {
		return nil, err
	}
	a.logger.Info("submission enqueued",
		logging.String(logging.FieldEventType, "item_enqueued"),
		logging.String(logging.FieldItemID, item.LocalID),
		logging.String("action_type", payload.ActionType),
	)
	a.bus.Emit()
	return item, nil
}

// ListActive returns the active partition in stored (chronological) order.
func (a *Access) ListActive(ctx context.Context) ([]*queue.Item, error) {
	return a.store.LoadActive(ctx)
}

// ListCompleted returns the archived partition in completion order.
func (a *Access) ListCompleted(ctx context.Context) ([]*queue.Item, error) {
	return a.store.LoadCompleted(ctx)
}

// Describe returns one item by its local identifier, searching both
// partitions.
func (a *Access) Describe(ctx context.Context, localID string) (*queue.Item, error) {
	return a.store.Get(ctx, localID)
}

// Stats returns active item counts per overall status.
func (a *Access) Stats(ctx context.Context) (map[queue.Status]int, error) {
	return a.store.Stats(ctx)
}

// Retry re-arms an item for the next scheduling pass. Failed and offline
// sub-states return to pending and the attempt timestamp is cleared so the
// debounce window does not swallow the request. When service names a
// single sub-state, only that one is reset.
//
// Items that exhausted their retry age stay locked unless force is set;
// force additionally restarts the fast retry phase so the item gets a
// fresh budget rather than an immediate re-exhaustion.
func (a *Access) Retry(ctx context.Context, localID string, service queue.ServiceName, force bool) (*queue.Item, error) {
	item, err := a.store.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if item.Status == queue.StatusCompleted {
		return nil, fmt.Errorf("item %s already completed", localID)
	}
	if item.Exhausted && !force {
		return nil, fmt.Errorf("item %s: %w", localID, ErrRetryLocked)
	}

	targets := []queue.ServiceName{queue.ServiceLedger, queue.ServiceProof, queue.ServiceLinking}
	if service != "" {
		state := item.Service(service)
		if state == nil {
			return nil, fmt.Errorf("unknown service %q", service)
		}
		targets = []queue.ServiceName{service}
	}
	for _, name := range targets {
		resetServiceState(item.Service(name), force)
	}
	if item.Exhausted && force {
		item.Exhausted = false
		// The age clock restarts too, otherwise the next pass would
		// immediately exhaust the item again.
		item.CreatedAt = time.Now().UTC()
	}
	item.LastAttemptAt = nil
	item.Status = queue.StatusPending
	item.RecomputeStatus()

	if err := a.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	a.logger.Info("manual retry requested",
		logging.String(logging.FieldEventType, "item_retried"),
		logging.String(logging.FieldItemID, item.LocalID),
		logging.Bool("force", force),
	)
	a.bus.Emit()
	return item, nil
}

func resetServiceState(state *queue.ServiceState, force bool) {
	switch state.Status {
	case queue.ServiceFailed, queue.ServiceOffline:
		state.Status = queue.ServicePending
		state.Error = ""
	}
	if force {
		state.EnteredSlowModeAt = nil
		state.InitialRetryCount = 0
		state.SlowRetryCount = 0
	}
}

// Clear removes an item entirely. Completed items clear unconditionally;
// an exhausted item clears only when the caller acknowledges it is giving
// up on delivery. Anything still deliverable is refused.
func (a *Access) Clear(ctx context.Context, localID string, acknowledge bool) error {
	item, err := a.store.Get(ctx, localID)
	if err != nil {
		return err
	}
	switch {
	case item.Status == queue.StatusCompleted:
	case item.Exhausted && acknowledge:
	case item.Exhausted:
		return fmt.Errorf("item %s exhausted but not acknowledged: %w", localID, ErrNotClearable)
	default:
		return fmt.Errorf("item %s still awaiting delivery: %w", localID, ErrNotClearable)
	}

	removed, err := a.store.RemoveEverywhere(ctx, localID)
	if err != nil {
		return err
	}
	if !removed {
		return queue.ErrNotFound
	}
	a.logger.Info("item cleared",
		logging.String(logging.FieldEventType, "item_cleared"),
		logging.String(logging.FieldItemID, localID),
	)
	a.bus.Emit()
	return nil
}

// PurgeCompleted drops archived items older than the retention window and
// reports how many were removed.
func (a *Access) PurgeCompleted(ctx context.Context, retention time.Duration) (int, error) {
	removed, err := a.store.PurgeExpired(ctx, retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		a.logger.Info("retention sweep removed archived items", logging.Int("removed", removed))
		a.bus.Emit()
	}
	return removed, nil
}
