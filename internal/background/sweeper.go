package background

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper marks expired sessions inactive
type SessionSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// LockoutSweeper releases expired lockouts and prunes attempt history
type LockoutSweeper interface {
	ReleaseExpiredLockouts(ctx context.Context) (int64, error)
	PruneAttempts(ctx context.Context) (int64, error)
}

// OTPSweeper prunes expired email one-time codes
type OTPSweeper interface {
	CleanupExpiredCodes(ctx context.Context) (int64, error)
}

// Sweeper periodically reconciles time-based state: expired sessions,
// releasable lockouts, stale one-time codes, and attempt rows past
// retention. Every pass is idempotent, and correctness never depends on it
// running: reads check expiry against the clock themselves.
type Sweeper struct {
	sessions SessionSweeper
	lockouts LockoutSweeper
	otps     OTPSweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(
	sessions SessionSweeper,
	lockouts LockoutSweeper,
	otps OTPSweeper,
	logger *slog.Logger,
	interval time.Duration,
) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		lockouts: lockouts,
		otps:     otps,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.sessions.CleanupExpired(sweepCtx); err != nil {
		s.logger.Error("session sweep failed", slog.Any("error", err))
	}

	if _, err := s.lockouts.ReleaseExpiredLockouts(sweepCtx); err != nil {
		s.logger.Error("lockout sweep failed", slog.Any("error", err))
	}

	if _, err := s.lockouts.PruneAttempts(sweepCtx); err != nil {
		s.logger.Error("attempt pruning failed", slog.Any("error", err))
	}

	if _, err := s.otps.CleanupExpiredCodes(sweepCtx); err != nil {
		s.logger.Error("email code pruning failed", slog.Any("error", err))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
