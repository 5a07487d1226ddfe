package background

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockSessionSweeper struct {
	calls atomic.Int64
	err   error
}

func (m *mockSessionSweeper) CleanupExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return 0, m.err
}

type mockLockoutSweeper struct {
	releaseCalls atomic.Int64
	pruneCalls   atomic.Int64
}

func (m *mockLockoutSweeper) ReleaseExpiredLockouts(ctx context.Context) (int64, error) {
	m.releaseCalls.Add(1)
	return 0, nil
}

func (m *mockLockoutSweeper) PruneAttempts(ctx context.Context) (int64, error) {
	m.pruneCalls.Add(1)
	return 0, nil
}

type mockOTPSweeper struct {
	calls atomic.Int64
}

func (m *mockOTPSweeper) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return 0, nil
}

func TestSweeper_RunsImmediatelyOnStart(t *testing.T) {
	sessions := &mockSessionSweeper{}
	lockouts := &mockLockoutSweeper{}
	otps := &mockOTPSweeper{}

	sweeper := NewSweeper(sessions, lockouts, otps, slog.Default(), time.Hour)

	done := make(chan struct{})
	go func() {
		sweeper.Start(context.Background())
		close(done)
	}()

	// The first pass runs before the first tick
	assert.Eventually(t, func() bool {
		return sessions.calls.Load() == 1 &&
			lockouts.releaseCalls.Load() == 1 &&
			lockouts.pruneCalls.Load() == 1 &&
			otps.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_TicksRepeatedly(t *testing.T) {
	sessions := &mockSessionSweeper{}
	sweeper := NewSweeper(sessions, &mockLockoutSweeper{}, &mockOTPSweeper{}, slog.Default(), 10*time.Millisecond)

	go sweeper.Start(context.Background())
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		return sessions.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSweeper_OneFailureDoesNotStopTheOthers(t *testing.T) {
	sessions := &mockSessionSweeper{err: errors.New("db down")}
	lockouts := &mockLockoutSweeper{}
	otps := &mockOTPSweeper{}

	sweeper := NewSweeper(sessions, lockouts, otps, slog.Default(), time.Hour)

	go sweeper.Start(context.Background())
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		return lockouts.releaseCalls.Load() == 1 && otps.calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	sweeper := NewSweeper(&mockSessionSweeper{}, &mockLockoutSweeper{}, &mockOTPSweeper{}, slog.Default(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit on context cancel")
	}
}
