package service

import (
	"context"
	"log/slog"
	"time"

	"autorent/internal/config"
)

const sweeperLockKey = "lock:sweeper"

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Expired       int
	AutoCompleted int
	Improved      int
}

// Sweeper applies the time-based transitions: hold expiry, auto-completion
// after the inspection grace and the yearly class improvement. Only the
// replica holding the leader lock sweeps.
type Sweeper struct {
	bookings *BookingService
	risk     *RiskService
	leader   LeaderLock
	policy   config.SweepPolicy
	logger   *slog.Logger
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.policy.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep if this replica wins the leader lock. A sweep
// skipped for lack of leadership returns a zero result.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	token, ok, err := s.leader.Acquire(ctx, sweeperLockKey, s.policy.LockTTL)
	if err != nil || !ok {
		return res, err
	}
	defer func() {
		if err := s.leader.Release(context.WithoutCancel(ctx), sweeperLockKey, token); err != nil {
			s.logger.Warn("failed to release sweeper lock", "error", err)
		}
	}()

	limit := s.policy.BatchSize
	if limit <= 0 {
		limit = 100
	}
	if res.Expired, err = s.bookings.ExpireStale(ctx, limit); err != nil {
		return res, err
	}
	if res.AutoCompleted, err = s.bookings.AutoCompleteReturned(ctx, limit); err != nil {
		return res, err
	}
	if res.Improved, err = s.risk.ApplyAnnualImprovement(ctx, limit); err != nil {
		return res, err
	}

	if res != (SweepResult{}) {
		s.logger.Info("sweep finished",
			"expired", res.Expired,
			"auto_completed", res.AutoCompleted,
			"improved", res.Improved,
		)
	}
	return res, nil
}
