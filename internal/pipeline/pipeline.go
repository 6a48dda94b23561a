// Package pipeline drives one queue item through its two backend
// deliveries and the linking step, persisting after every sub-state
// transition so a process kill at any point leaves durable state the
// retry policy can recover.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
)

// Pipeline advances queue items. It holds no per-item state; the same
// instance serves every item the scheduler dispatches.
type Pipeline struct {
	store  *queue.Store
	ledger services.LedgerClient
	proof  services.ProofClient
	link   services.LinkClient
	params retry.Params
	logger *slog.Logger
}

// New constructs a pipeline around the store and backend clients.
func New(store *queue.Store, ledger services.LedgerClient, proof services.ProofClient, link services.LinkClient, params retry.Params, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		ledger: ledger,
		proof:  proof,
		link:   link,
		params: params,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Result summarizes one pipeline run for a single item.
type Result struct {
	// Advanced is true when any sub-state changed during the run.
	Advanced bool
	// Completed is true when the item fully delivered and was archived.
	Completed bool
	// AuthFailure is true when a step was rejected for credentials; the
	// scheduler aborts the rest of its pass rather than burning every
	// remaining item against a dead token.
	AuthFailure bool
}

// Process attempts every currently eligible sub-state of item, strictly in
// ledger, proof, linking order. Already-completed sub-states are never
// re-attempted. When online is false every unfinished sub-state moves to
// offline without consuming retry budget.
//
// Delivery failures are contained: they are recorded on the item and do
// not surface as errors. The returned error reports storage failures only.
func (p *Pipeline) Process(ctx context.Context, item *queue.Item, token string, online bool) (Result, error) {
	var res Result
	if item == nil {
		return res, nil
	}

	// This run owns the scheduler's claim.
	if item.Status == queue.StatusQueued {
		item.Status = queue.StatusProcessing
	}
	item.ClaimedAt = nil

	if item.IsFullyDelivered() {
		item.RecomputeStatus()
		if err := p.archive(ctx, item); err != nil {
			return res, err
		}
		res.Completed = true
		return res, nil
	}

	if !online {
		return p.markOffline(ctx, item)
	}

	now := time.Now().UTC()
	steps := []struct {
		name queue.ServiceName
		call func(context.Context, *queue.Item, string) (string, error)
	}{
		{queue.ServiceLedger, p.callLedger},
		{queue.ServiceProof, p.callProof},
		{queue.ServiceLinking, p.callLink},
	}

	for _, step := range steps {
		decision := p.params.EvaluateService(item, step.name, now)
		if !decision.Eligible {
			continue
		}
		outcome, err := p.runStep(ctx, item, step.name, token, step.call)
		if err != nil {
			return res, err
		}
		res.Advanced = true
		if outcome.authFailure {
			res.AuthFailure = true
			break
		}
	}

	item.RecomputeStatus()
	if err := p.persist(ctx, item); err != nil {
		return res, err
	}

	if item.Status == queue.StatusCompleted {
		if err := p.archive(ctx, item); err != nil {
			return res, err
		}
		res.Completed = true
	}
	return res, nil
}

type stepOutcome struct {
	authFailure bool
}

func (p *Pipeline) runStep(ctx context.Context, item *queue.Item, name queue.ServiceName, token string, call func(context.Context, *queue.Item, string) (string, error)) (stepOutcome, error) {
	state := item.Service(name)
	logger := p.logger.With(
		logging.String(logging.FieldItemID, item.LocalID),
		logging.String(logging.FieldService, string(name)),
	)

	previous := state.Status
	state.Status = queue.ServiceProcessing
	item.Status = queue.StatusProcessing
	item.MarkAttempt(time.Now().UTC())
	if err := p.persist(ctx, item); err != nil {
		return stepOutcome{}, err
	}

	resultID, callErr := call(ctx, item, token)
	now := time.Now().UTC()

	if callErr != nil {
		if services.IsAuth(callErr) {
			// Credential problems belong to the pass, not the item: put
			// the sub-state back without touching its retry counters.
			state.Status = previous
			item.RecomputeStatus()
			if err := p.persist(ctx, item); err != nil {
				return stepOutcome{}, err
			}
			logger.Warn("delivery rejected for credentials", logging.Error(callErr))
			return stepOutcome{authFailure: true}, nil
		}

		state.RecordFailure(callErr.Error(), p.params.MaxFastRetries, now)
		item.RecomputeStatus()
		if err := p.persist(ctx, item); err != nil {
			return stepOutcome{}, err
		}
		logger.Warn("delivery attempt failed",
			logging.Error(callErr),
			logging.Int("fast_retries", state.InitialRetryCount),
			logging.Int("slow_retries", state.SlowRetryCount),
			logging.Bool("slow_mode", state.InSlowMode()),
		)
		return stepOutcome{}, nil
	}

	state.RecordSuccess(resultID)
	item.RecomputeStatus()
	if err := p.persist(ctx, item); err != nil {
		return stepOutcome{}, err
	}
	logger.Info("delivery step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.String("result_id", resultID),
	)
	return stepOutcome{}, nil
}

func (p *Pipeline) markOffline(ctx context.Context, item *queue.Item) (Result, error) {
	item.Ledger.RecordOffline()
	item.Proof.RecordOffline()
	item.Linking.RecordOffline()
	if item.Status == queue.StatusQueued || item.Status == queue.StatusProcessing {
		item.Status = queue.StatusOffline
	}
	item.RecomputeStatus()
	if err := p.persist(ctx, item); err != nil {
		return Result{}, err
	}
	return Result{Advanced: true}, nil
}

func (p *Pipeline) persist(ctx context.Context, item *queue.Item) error {
	if err := p.store.UpdateItem(ctx, item); err != nil {
		return services.Wrap(services.ErrStorage, "pipeline", "persist item", item.LocalID, err)
	}
	return nil
}

func (p *Pipeline) archive(ctx context.Context, item *queue.Item) error {
	if err := p.store.MoveToCompleted(ctx, item.LocalID); err != nil {
		return services.Wrap(services.ErrStorage, "pipeline", "archive item", item.LocalID, err)
	}
	p.logger.Info("item fully delivered",
		logging.String(logging.FieldItemID, item.LocalID),
		logging.String(logging.FieldEventType, "item_complete"),
		logging.String("record_id", item.Ledger.ResultID),
		logging.String("proof_uid", item.Proof.ResultID),
	)
	return nil
}

func (p *Pipeline) callLedger(ctx context.Context, item *queue.Item, token string) (string, error) {
	return p.ledger.CreateRecord(ctx, token, item.Payload)
}

func (p *Pipeline) callProof(ctx context.Context, item *queue.Item, token string) (string, error) {
	fields := services.DeriveAttestation(item.Payload, item.Ledger.ResultID, item.CreatedAt)
	return p.proof.Attest(ctx, token, fields)
}

func (p *Pipeline) callLink(ctx context.Context, item *queue.Item, token string) (string, error) {
	if err := p.link.AttachProof(ctx, token, item.Ledger.ResultID, item.Proof.ResultID); err != nil {
		return "", err
	}
	return "", nil
}
