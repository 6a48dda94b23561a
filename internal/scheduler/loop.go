package scheduler

import (
	"context"
	"time"

	"fieldsync/internal/logging"
)

// Start launches the foreground polling loop. One pass runs immediately;
// subsequent passes fire on the poll interval until Stop or context
// cancellation. Idle passes stretch the cadence toward the background
// interval so a drained queue does not keep waking the device every poll
// tick; the first productive pass snaps it back.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	interval := time.Duration(s.cfg.Scheduler.PollIntervalSeconds) * time.Second
	background := time.Duration(s.cfg.Scheduler.BackgroundIntervalMinutes) * time.Minute

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx, interval, background)
	}()
	s.logger.Info("scheduler started",
		logging.Duration("poll_interval", interval),
		logging.Duration("background_interval", background),
	)
	return nil
}

// Stop cancels the loop and waits for any in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval, background time.Duration) {
	current := interval
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			productive := s.tick(ctx)
			if next := nextInterval(current, interval, background, productive); next != current {
				current = next
				ticker.Reset(current)
			}
		}
	}
}

// nextInterval backs the cadence off by doubling toward the background
// interval while passes stay idle, and restores the base poll interval as
// soon as one does work.
func nextInterval(current, base, background time.Duration, productive bool) time.Duration {
	if productive || background <= base {
		return base
	}
	next := current * 2
	if next > background {
		next = background
	}
	if next < base {
		next = base
	}
	return next
}

func (s *Scheduler) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	result, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("scheduling pass failed",
			logging.String(logging.FieldPassID, result.PassID),
			logging.Error(err),
		)
		return false
	}
	if result.NoOp {
		s.logger.Debug("scheduling pass idle",
			logging.String(logging.FieldPassID, result.PassID),
			logging.String("reason", result.Reason),
		)
		return false
	}
	return true
}
