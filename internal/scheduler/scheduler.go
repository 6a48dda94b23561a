// Package scheduler decides when, how many, and which queue items to hand
// to the submission pipeline. A pass samples device conditions once,
// filters the active queue through the retry policy, verifies credentials,
// and dispatches grouped slices bounded by a condition-derived batch size.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/config"
	"fieldsync/internal/device"
	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/pipeline"
	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
)

// BatchProfile labels the condition tier a pass ran under.
type BatchProfile string

const (
	ProfileOptimal      BatchProfile = "optimal"
	ProfileNormal       BatchProfile = "normal"
	ProfileConservative BatchProfile = "conservative"
	ProfileCritical     BatchProfile = "critical"
)

// PassResult summarizes one scheduling pass.
type PassResult struct {
	PassID     string
	Profile    BatchProfile
	BatchSize  int
	Selected   int
	Dispatched int
	Completed  int
	Exhausted  int
	Offline    bool
	NoOp       bool
	Reason     string
}

// Pass termination reasons.
const (
	ReasonDone         = "done"
	ReasonNoEligible   = "no-eligible-items"
	ReasonOffline      = "offline"
	ReasonAuthFailed   = "auth-failed"
	ReasonAlreadyBusy  = "pass-in-flight"
	ReasonStorageError = "storage-error"
)

// Scheduler coordinates queue processing passes.
type Scheduler struct {
	cfg     *config.Config
	store   *queue.Store
	pipe    *pipeline.Pipeline
	params  retry.Params
	power   device.PowerObserver
	network device.NetworkObserver
	creds   services.CredentialProvider
	bus     *events.Bus
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight bool
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastPass PassResult
	lastErr  error
}

// New constructs a scheduler. All collaborators are injected; nothing in
// this package reaches for globals.
func New(
	cfg *config.Config,
	store *queue.Store,
	pipe *pipeline.Pipeline,
	power device.PowerObserver,
	network device.NetworkObserver,
	creds services.CredentialProvider,
	bus *events.Bus,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		pipe:    pipe,
		params:  retry.ParamsFromConfig(cfg),
		power:   power,
		network: network,
		creds:   creds,
		bus:     bus,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
	}
}

// RunOnce executes a single scheduling pass. Both the foreground timer
// loop and platform background-task adapters call this identically. A
// pass requested while another is in flight is dropped, not queued; the
// next tick naturally retries.
func (s *Scheduler) RunOnce(ctx context.Context) (PassResult, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return PassResult{NoOp: true, Reason: ReasonAlreadyBusy}, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	result, err := s.runPass(ctx)

	s.mu.Lock()
	s.inFlight = false
	s.lastPass = result
	s.lastErr = err
	s.mu.Unlock()

	// One queue-updated event per pass, whatever its outcome.
	s.bus.Emit()
	return result, err
}

// LastPass returns the most recent pass result and error.
func (s *Scheduler) LastPass() (PassResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPass, s.lastErr
}

func (s *Scheduler) runPass(ctx context.Context) (PassResult, error) {
	result := PassResult{PassID: uuid.NewString()[:8]}
	logger := s.logger.With(logging.String(logging.FieldPassID, result.PassID))
	start := time.Now()

	// Sampling.
	power := s.power.Snapshot()
	net := s.network.Snapshot()
	result.Profile, result.BatchSize = s.batchSize(power, net)
	logger.Debug("conditions sampled",
		logging.Int("battery_percent", power.BatteryPercent),
		logging.Bool("charging", power.Charging),
		logging.Bool("power_save", power.PowerSave),
		logging.Bool("connected", net.Connected),
		logging.Bool("metered", net.Metered),
		logging.String("profile", string(result.Profile)),
	)

	// Filtering.
	items, err := s.store.LoadActive(ctx)
	if err != nil {
		result.Reason = ReasonStorageError
		return result, services.Wrap(services.ErrStorage, "scheduler", "load active items", "", err)
	}
	selected, err := s.filter(ctx, logger, &result, net, items)
	if err != nil {
		result.Reason = ReasonStorageError
		return result, err
	}
	result.Selected = len(selected)

	if !net.Connected {
		// The pass ends here, but every unfinished sub-state still
		// transitions to offline so the UI reflects why nothing is moving,
		// including items the debounce or cooldown would have skipped.
		// Counters are untouched. Exhausted items keep their terminal
		// failed display.
		for _, item := range items {
			if item.Status == queue.StatusCompleted || item.Exhausted {
				continue
			}
			if _, err := s.pipe.Process(ctx, item, "", false); err != nil {
				result.Reason = ReasonStorageError
				return result, err
			}
		}
		result.Offline = true
		result.NoOp = true
		result.Reason = ReasonOffline
		return result, nil
	}

	if len(selected) == 0 {
		result.NoOp = true
		result.Reason = ReasonNoEligible
		return result, nil
	}

	// Reauthorizing. A doomed credential aborts the whole pass instead of
	// partially processing with it.
	token, ok := s.creds.CurrentToken(ctx)
	if !ok {
		token, err = s.creds.Reauthorize(ctx)
		if err != nil {
			result.NoOp = true
			result.Reason = ReasonAuthFailed
			logger.Warn("silent reauthorization failed; pass aborted", logging.Error(err))
			return result, err
		}
	}

	// Dispatching.
	if err := s.claim(ctx, selected); err != nil {
		result.Reason = ReasonStorageError
		return result, err
	}
	dispatchErr := s.dispatch(ctx, logger, &result, selected, token)
	if unclaimErr := s.unclaim(ctx, selected); unclaimErr != nil && dispatchErr == nil {
		dispatchErr = unclaimErr
	}
	if dispatchErr != nil {
		return result, dispatchErr
	}

	if result.Reason == "" {
		result.Reason = ReasonDone
	}
	logger.Info("pass complete",
		logging.String(logging.FieldEventType, "pass_complete"),
		logging.String("reason", result.Reason),
		logging.Int("selected", result.Selected),
		logging.Int("dispatched", result.Dispatched),
		logging.Int("completed", result.Completed),
		logging.Int("exhausted", result.Exhausted),
		logging.Duration("pass_duration", time.Since(start)),
	)
	return result, nil
}

// filter walks the active queue and returns the items this pass will
// dispatch, in stored order. Exhaustion discovered here is persisted so
// the UI can surface the contact-support condition.
func (s *Scheduler) filter(ctx context.Context, logger *slog.Logger, result *PassResult, net device.NetState, items []*queue.Item) ([]*queue.Item, error) {
	now := time.Now().UTC()
	debounce := time.Duration(s.cfg.Retry.DebounceSeconds) * time.Second

	var selected []*queue.Item
	for _, item := range items {
		if item.Status == queue.StatusCompleted {
			continue
		}

		decision := s.params.Evaluate(item, now)
		if decision.Reason == retry.ReasonExhausted && !item.Exhausted {
			item.Exhausted = true
			item.Status = queue.StatusFailed
			if err := s.store.UpdateItem(ctx, item); err != nil {
				return nil, services.Wrap(services.ErrStorage, "scheduler", "persist exhaustion", item.LocalID, err)
			}
			result.Exhausted++
			logger.Warn("item exhausted retry age; manual intervention required",
				logging.String(logging.FieldItemID, item.LocalID),
			)
			continue
		}
		if !decision.Eligible {
			continue
		}

		// Debounce against rapid re-entry from overlapping triggers.
		if item.LastAttemptAt != nil && now.Sub(*item.LastAttemptAt) < debounce {
			continue
		}

		// On metered connections only fresh work goes out; retries wait
		// for an unmetered link.
		if net.Metered && item.Status != queue.StatusPending {
			continue
		}

		selected = append(selected, item)
	}
	return selected, nil
}

// claim marks the selection as queued so any later reader of the queue,
// including a concurrent process sharing the store, sees the items as
// spoken for. The claim carries its own timestamp; LastAttemptAt stays
// untouched because no service call has happened yet.
func (s *Scheduler) claim(ctx context.Context, selected []*queue.Item) error {
	claimed := time.Now().UTC()
	for _, item := range selected {
		item.Status = queue.StatusQueued
		stamp := claimed
		item.ClaimedAt = &stamp
	}
	for _, item := range selected {
		if err := s.store.UpdateItem(ctx, item); err != nil {
			return services.Wrap(services.ErrStorage, "scheduler", "claim items", item.LocalID, err)
		}
	}
	return nil
}

// unclaim reverts any claim the pipeline never cleared (auth abort,
// storage abort) so the items become eligible again next tick.
func (s *Scheduler) unclaim(ctx context.Context, selected []*queue.Item) error {
	for _, item := range selected {
		if item.Status != queue.StatusQueued {
			continue
		}
		item.Status = queue.StatusPending
		item.ClaimedAt = nil
		item.RecomputeStatus()
		if err := s.store.UpdateItem(ctx, item); err != nil {
			return services.Wrap(services.ErrStorage, "scheduler", "release claim", item.LocalID, err)
		}
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, logger *slog.Logger, result *PassResult, selected []*queue.Item, token services.Token) error {
	groups, order := groupItems(selected)

	for _, key := range order {
		group := groups[key]
		for from := 0; from < len(group); from += result.BatchSize {
			to := from + result.BatchSize
			if to > len(group) {
				to = len(group)
			}
			for _, item := range group[from:to] {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := s.pipe.Process(ctx, item, token.Access, true)
				if err != nil {
					// Storage failures abort the pass; proceeding would
					// run ahead of durable state.
					return err
				}
				result.Dispatched++
				if res.Completed {
					result.Completed++
				}
				if res.AuthFailure {
					refreshed, reauthErr := s.creds.Reauthorize(ctx)
					if reauthErr != nil {
						result.Reason = ReasonAuthFailed
						logger.Warn("credential rejected mid-pass and reauthorization failed; aborting pass",
							logging.Error(reauthErr),
						)
						return nil
					}
					token = refreshed
				}
			}
		}
	}
	return nil
}

// groupItems buckets the selection by its coarse key while preserving
// selection order within and across groups.
func groupItems(selected []*queue.Item) (map[string][]*queue.Item, []string) {
	groups := make(map[string][]*queue.Item)
	var order []string
	for _, item := range selected {
		key := item.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	return groups, order
}

// batchSize maps sampled conditions onto a batch profile. Constraint
// severity strictly decreases the size: critical < conservative < normal
// < optimal.
func (s *Scheduler) batchSize(power device.PowerState, net device.NetState) (BatchProfile, int) {
	batches := s.cfg.Scheduler
	switch {
	case power.BatteryPercent < batches.LowBatteryPercent && !power.Charging:
		return ProfileCritical, batches.BatchCritical
	case power.PowerSave || net.Metered:
		return ProfileConservative, batches.BatchConservative
	case power.Charging && !net.Metered:
		return ProfileOptimal, batches.BatchOptimal
	default:
		return ProfileNormal, batches.BatchNormal
	}
}
