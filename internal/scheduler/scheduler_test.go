package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/creds"
	"fieldsync/internal/device"
	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/pipeline"
	"fieldsync/internal/queue"
	"fieldsync/internal/retry"
	"fieldsync/internal/services"
	"fieldsync/internal/testsupport"
)

type fakeLedger struct {
	createCalls int
	createErr   error
	attachErr   error
}

func (f *fakeLedger) CreateRecord(_ context.Context, _ string, _ queue.Payload) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "rec-1", nil
}

func (f *fakeLedger) AttachProof(_ context.Context, _, _, _ string) error {
	return f.attachErr
}

type fakeProof struct {
	calls int
	err   error
}

func (f *fakeProof) Attest(_ context.Context, _ string, _ services.AttestationFields) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "uid-1", nil
}

type fixture struct {
	cfg    *config.Config
	store  *queue.Store
	ledger *fakeLedger
	proof  *fakeProof
	bus    *events.Bus
}

func validToken() services.Token {
	return services.Token{Access: "token", ExpiresAt: time.Now().Add(time.Hour)}
}

func newScheduler(t *testing.T, fx *fixture, power device.PowerState, net device.NetState, provider services.CredentialProvider) *Scheduler {
	t.Helper()
	if fx.cfg == nil {
		fx.cfg = testsupport.NewConfig(t)
	}
	if fx.store == nil {
		fx.store = testsupport.MustOpenStore(t, fx.cfg)
	}
	if fx.ledger == nil {
		fx.ledger = &fakeLedger{}
	}
	if fx.proof == nil {
		fx.proof = &fakeProof{}
	}
	if fx.bus == nil {
		fx.bus = events.NewBus()
		t.Cleanup(fx.bus.Close)
	}
	if provider == nil {
		provider = creds.StaticProvider{Token: validToken()}
	}
	params := retry.ParamsFromConfig(fx.cfg)
	pipe := pipeline.New(fx.store, fx.ledger, fx.proof, fx.ledger, params, logging.NewNop())
	return New(fx.cfg, fx.store, pipe,
		device.StaticPower{State: power}, device.StaticNetwork{State: net},
		provider, fx.bus, logging.NewNop())
}

func mainsPower() device.PowerState {
	return device.PowerState{BatteryPercent: 90, Charging: true}
}

func wifi() device.NetState {
	return device.NetState{Connected: true}
}

func TestBatchProfileSelection(t *testing.T) {
	tests := []struct {
		name    string
		power   device.PowerState
		net     device.NetState
		profile BatchProfile
		size    int
	}{
		{"charging unmetered", device.PowerState{BatteryPercent: 80, Charging: true}, wifi(), ProfileOptimal, 20},
		{"discharging unmetered", device.PowerState{BatteryPercent: 80}, wifi(), ProfileNormal, 10},
		{"metered", device.PowerState{BatteryPercent: 80, Charging: true}, device.NetState{Connected: true, Metered: true}, ProfileConservative, 5},
		{"power save", device.PowerState{BatteryPercent: 80, Charging: true, PowerSave: true}, wifi(), ProfileConservative, 5},
		{"low battery discharging", device.PowerState{BatteryPercent: 10}, wifi(), ProfileCritical, 1},
		{"low battery but charging", device.PowerState{BatteryPercent: 10, Charging: true}, wifi(), ProfileOptimal, 20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sched := newScheduler(t, &fixture{}, tc.power, tc.net, nil)
			result, err := sched.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if result.Profile != tc.profile || result.BatchSize != tc.size {
				t.Fatalf("profile %s size %d, want %s %d", result.Profile, result.BatchSize, tc.profile, tc.size)
			}
		})
	}
}

func TestPassDeliversEligibleItems(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)
	ctx := context.Background()

	a := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")
	b := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Selected != 2 || result.Dispatched != 2 || result.Completed != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Reason != ReasonDone {
		t.Fatalf("Reason = %s", result.Reason)
	}

	for _, item := range []*queue.Item{a, b} {
		stored, err := fx.store.Get(ctx, item.LocalID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if stored.Status != queue.StatusCompleted {
			t.Fatalf("item %s status = %s", item.LocalID, stored.Status)
		}
		if stored.ClaimedAt != nil {
			t.Fatalf("item %s kept its claim stamp after delivery", item.LocalID)
		}
	}
}

func TestMeteredConnectionSkipsRetries(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), device.NetState{Connected: true, Metered: true}, nil)
	ctx := context.Background()

	fresh := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")

	failed := testsupport.Enqueue(t, fx.store, "pickup", "0xdef")
	failed.Ledger.RecordFailure("timeout", 3, time.Now().UTC())
	failed.RecomputeStatus()
	old := time.Now().UTC().Add(-time.Hour)
	failed.LastAttemptAt = &old
	if err := fx.store.UpdateItem(ctx, failed); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Selected != 1 || result.Dispatched != 1 {
		t.Fatalf("result = %+v", result)
	}

	stored, err := fx.store.Get(ctx, fresh.LocalID)
	if err != nil {
		t.Fatalf("Get fresh: %v", err)
	}
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("fresh item status = %s", stored.Status)
	}
	stored, err = fx.store.Get(ctx, failed.LocalID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Ledger.InitialRetryCount != 1 {
		t.Fatal("retry dispatched on a metered connection")
	}
}

func TestDebounceSkipsRecentAttempts(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)
	ctx := context.Background()

	item := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")
	recent := time.Now().UTC().Add(-5 * time.Second)
	item.LastAttemptAt = &recent
	if err := fx.store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.NoOp || result.Reason != ReasonNoEligible {
		t.Fatalf("result = %+v", result)
	}
	if fx.ledger.createCalls != 0 {
		t.Fatal("debounced item was dispatched")
	}
}

func TestOfflinePassMarksItemsWithoutPenalty(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), device.NetState{}, nil)
	ctx := context.Background()

	item := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")

	// An item the debounce would skip must still flip to offline; the
	// display would otherwise keep reporting a stale failure.
	debounced := testsupport.Enqueue(t, fx.store, "pickup", "0xdef")
	debounced.Ledger.RecordFailure("timeout", 3, time.Now().UTC())
	debounced.RecomputeStatus()
	recent := time.Now().UTC().Add(-5 * time.Second)
	debounced.LastAttemptAt = &recent
	if err := fx.store.UpdateItem(ctx, debounced); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.Offline || result.Reason != ReasonOffline {
		t.Fatalf("result = %+v", result)
	}
	if fx.ledger.createCalls != 0 {
		t.Fatal("offline pass reached a backend client")
	}

	for _, id := range []string{item.LocalID, debounced.LocalID} {
		stored, err := fx.store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if stored.Status != queue.StatusOffline {
			t.Fatalf("item %s status = %s", id, stored.Status)
		}
		if stored.TotalRetryCount != 0 {
			t.Fatal("offline pass consumed retry budget")
		}
	}
}

func TestClaimStampsItemsAndUnclaimReleasesThem(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)
	ctx := context.Background()

	item := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")

	if err := sched.claim(ctx, []*queue.Item{item}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	stored, err := fx.store.Get(ctx, item.LocalID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != queue.StatusQueued || stored.ClaimedAt == nil {
		t.Fatalf("claimed item = status %s claimedAt %v", stored.Status, stored.ClaimedAt)
	}
	// Claiming is not an attempt; the debounce keys off LastAttemptAt.
	if stored.LastAttemptAt != nil {
		t.Fatal("claim stamped LastAttemptAt")
	}

	if err := sched.unclaim(ctx, []*queue.Item{stored}); err != nil {
		t.Fatalf("unclaim: %v", err)
	}
	stored, err = fx.store.Get(ctx, item.LocalID)
	if err != nil {
		t.Fatalf("Get after unclaim: %v", err)
	}
	if stored.Status != queue.StatusPending || stored.ClaimedAt != nil {
		t.Fatalf("released item = status %s claimedAt %v", stored.Status, stored.ClaimedAt)
	}
}

func TestAuthFailureAbortsPassAndReleasesClaims(t *testing.T) {
	fx := &fixture{
		proof: &fakeProof{err: services.Wrap(services.ErrAuth, "proof", "attest", "", errors.New("http 401"))},
	}
	provider := creds.StaticProvider{Token: validToken(), FailReauthorize: true}
	sched := newScheduler(t, fx, mainsPower(), wifi(), provider)
	ctx := context.Background()

	testsupport.Enqueue(t, fx.store, "pickup", "0xabc")
	testsupport.Enqueue(t, fx.store, "pickup", "0xdef")

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Reason != ReasonAuthFailed {
		t.Fatalf("Reason = %s", result.Reason)
	}
	if result.Dispatched != 1 {
		t.Fatalf("Dispatched = %d, want 1 before abort", result.Dispatched)
	}
	if fx.ledger.createCalls != 1 {
		t.Fatalf("createCalls = %d", fx.ledger.createCalls)
	}

	// No item may stay claimed once the pass ends.
	active, err := fx.store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	for _, item := range active {
		if item.Status == queue.StatusQueued || item.ClaimedAt != nil {
			t.Fatalf("item %s left claimed", item.LocalID)
		}
	}
}

func TestReauthorizationFailureBeforeDispatchAborts(t *testing.T) {
	fx := &fixture{}
	provider := creds.StaticProvider{FailReauthorize: true}
	sched := newScheduler(t, fx, mainsPower(), wifi(), provider)
	ctx := context.Background()

	testsupport.Enqueue(t, fx.store, "pickup", "0xabc")

	result, err := sched.RunOnce(ctx)
	if err == nil {
		t.Fatal("expected reauthorization error")
	}
	if result.Reason != ReasonAuthFailed || !result.NoOp {
		t.Fatalf("result = %+v", result)
	}
	if fx.ledger.createCalls != 0 {
		t.Fatal("dispatch ran without credentials")
	}
}

func TestPassMarksAgedItemsExhausted(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)
	ctx := context.Background()

	item := testsupport.Enqueue(t, fx.store, "pickup", "0xabc")
	item.CreatedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	item.Ledger.RecordFailure("timeout", 3, time.Now().UTC())
	item.RecomputeStatus()
	if err := fx.store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	result, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Exhausted != 1 || result.Dispatched != 0 {
		t.Fatalf("result = %+v", result)
	}

	stored, err := fx.store.Get(ctx, item.LocalID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Exhausted || stored.Status != queue.StatusFailed {
		t.Fatalf("stored = status %s exhausted %v", stored.Status, stored.Exhausted)
	}

	// The lockout holds on the next pass.
	result, err = sched.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if result.Exhausted != 0 || result.Dispatched != 0 {
		t.Fatalf("second pass result = %+v", result)
	}
}

func TestEveryPassEmitsOneQueueEvent(t *testing.T) {
	fx := &fixture{bus: events.NewBus()}
	t.Cleanup(fx.bus.Close)
	updates := fx.bus.Subscribe()

	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)
	if _, err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no queue event after pass")
	}
	select {
	case <-updates:
		t.Fatal("more than one pending event after a single pass")
	default:
	}
}

func TestConcurrentPassRequestIsDropped(t *testing.T) {
	fx := &fixture{}
	sched := newScheduler(t, fx, mainsPower(), wifi(), nil)

	sched.mu.Lock()
	sched.inFlight = true
	sched.mu.Unlock()

	result, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.NoOp || result.Reason != ReasonAlreadyBusy {
		t.Fatalf("result = %+v", result)
	}
}
