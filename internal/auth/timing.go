package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay equalizes response times across authentication failure modes
// so "user not found" and "password incorrect" are indistinguishable.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max).
// Uses crypto/rand instead of math/rand for security-sensitive operations.
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(buf) % uint64(max)), nil
}

func (td *TimingDelay) targetDelay() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(n) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps for the full target delay. Use WaitFrom when the work already
// done should count toward the delay.
func (td *TimingDelay) Wait(success bool) {
	td.WaitFrom(time.Now(), success)
}

// WaitFrom sleeps until total elapsed time since startTime reaches the
// target delay. No-op on success unless DelayOnSuccess is set.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}

	target := td.targetDelay()
	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
