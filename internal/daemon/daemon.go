package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fieldsync/internal/config"
	"fieldsync/internal/creds"
	"fieldsync/internal/device"
	"fieldsync/internal/events"
	"fieldsync/internal/logging"
	"fieldsync/internal/pipeline"
	"fieldsync/internal/queue"
	"fieldsync/internal/queueaccess"
	"fieldsync/internal/retry"
	"fieldsync/internal/scheduler"
	"fieldsync/internal/services/ledger"
	"fieldsync/internal/services/proof"
	"fieldsync/internal/syncer"
)

// Daemon owns the long-running pieces: the durable store, the scheduler
// loop, the in-memory mirror, and the retention sweep. A file lock keeps
// two daemons off the same data directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *queue.Store
	bus       *events.Bus
	access    *queueaccess.Access
	scheduler *scheduler.Scheduler
	mirror    *syncer.Mirror

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status is a point-in-time daemon summary for the CLI.
type Status struct {
	Running      bool
	StorePath    string
	LockFilePath string
	LastPass     scheduler.PassResult
	LastPassErr  error
}

// New wires the full processing graph from configuration. The ledger
// client doubles as the session refresher because the ledger backend also
// issues the tokens.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	ledgerClient := ledger.New(cfg)
	proofClient := proof.New(cfg)
	provider := creds.NewFileProvider(cfg.Paths.CredentialsFile, ledgerClient)
	params := retry.ParamsFromConfig(cfg)

	bus := events.NewBus()
	pipe := pipeline.New(store, ledgerClient, proofClient, ledgerClient, params, logger)
	sched := scheduler.New(cfg, store, pipe,
		device.NewSysfsPower(cfg), device.NewProcNetwork(cfg), provider, bus, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "fieldsyncd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		bus:       bus,
		access:    queueaccess.New(store, bus, logger),
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, primes the in-memory mirror, runs an
// initial retention sweep, and launches the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldsync daemon already holds the data directory")
	}

	runCtx, cancel := context.WithCancel(ctx)

	mirror, err := syncer.New(runCtx, d.store, d.bus, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("prime queue mirror: %w", err)
	}
	d.mirror = mirror
	d.cancel = cancel

	if _, err := d.access.PurgeCompleted(runCtx, d.retention()); err != nil {
		d.logger.Warn("startup retention sweep failed", logging.Error(err))
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.retentionLoop(runCtx)
	}()

	if err := d.scheduler.Start(runCtx); err != nil {
		d.Stop()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("fieldsync daemon started",
		logging.String("store", d.store.Path()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts background work and releases the instance lock.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.wg.Wait()
	if d.mirror != nil {
		d.mirror.Close()
		d.mirror = nil
	}
	if d.lock.Locked() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}
	if d.running.Swap(false) {
		d.logger.Info("fieldsync daemon stopped")
	}
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	d.bus.Close()
	return d.store.Close()
}

// Access exposes the queue operation surface.
func (d *Daemon) Access() *queueaccess.Access { return d.access }

// Mirror exposes the live in-memory queue view, nil until Start.
func (d *Daemon) Mirror() *syncer.Mirror { return d.mirror }

// RunPass triggers one scheduling pass outside the timer, for manual
// sync requests and platform background-task callbacks. When this
// instance does not already own the data directory the lock is held for
// the duration of the pass, so a one-shot pass never dispatches the same
// items a live daemon is working through.
func (d *Daemon) RunPass(ctx context.Context) (scheduler.PassResult, error) {
	if !d.lock.Locked() {
		ok, err := d.lock.TryLock()
		if err != nil {
			return scheduler.PassResult{}, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return scheduler.PassResult{}, errors.New("a fieldsync daemon owns this queue; it will deliver on its next pass")
		}
		defer func() {
			if err := d.lock.Unlock(); err != nil {
				d.logger.Warn("failed to release pass lock", logging.Error(err))
			}
		}()
	}
	return d.scheduler.RunOnce(ctx)
}

// Status reports runtime state for the status command.
func (d *Daemon) Status() Status {
	last, lastErr := d.scheduler.LastPass()
	return Status{
		Running:      d.running.Load(),
		StorePath:    d.store.Path(),
		LockFilePath: d.lockPath,
		LastPass:     last,
		LastPassErr:  lastErr,
	}
}

func (d *Daemon) retention() time.Duration {
	return time.Duration(d.cfg.Storage.RetentionDays) * 24 * time.Hour
}

// retentionLoop sweeps the archive once a day. The startup sweep already
// covered the backlog, so a long cadence is enough.
func (d *Daemon) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.access.PurgeCompleted(ctx, d.retention()); err != nil && ctx.Err() == nil {
				d.logger.Warn("retention sweep failed", logging.Error(err))
			}
		}
	}
}
