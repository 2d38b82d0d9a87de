// Package retry provides exponential backoff for long-lived reconnect loops.
//
// Mutating API calls are never retried; the only user is the change-feed
// subscriber, which must keep reconnecting while the user has a case open.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config holds backoff configuration.
type Config struct {
	InitialWait time.Duration // First delay after a failure
	MaxWait     time.Duration // Upper bound for any delay
	Multiplier  float64       // Growth factor per consecutive failure
	Jitter      float64       // Jitter factor (0-1)
}

// DefaultConfig returns the reconnect defaults used by the SSE client.
func DefaultConfig() Config {
	return Config{
		InitialWait: time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Backoff tracks consecutive failures for one reconnect loop.
// It is not safe for concurrent use.
type Backoff struct {
	cfg     Config
	current time.Duration
}

// NewBackoff creates a Backoff starting at cfg.InitialWait.
func NewBackoff(cfg Config) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxWait < cfg.InitialWait {
		cfg.MaxWait = cfg.InitialWait
	}
	return &Backoff{cfg: cfg, current: cfg.InitialWait}
}

// Next returns the delay to wait before the next attempt and grows the
// following one.
func (b *Backoff) Next() time.Duration {
	wait := b.current

	next := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if next > b.cfg.MaxWait {
		next = b.cfg.MaxWait
	}
	b.current = next

	if b.cfg.Jitter > 0 {
		wait += time.Duration(float64(wait) * b.cfg.Jitter * (rand.Float64()*2 - 1))
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Reset drops back to the initial delay after a successful attempt.
func (b *Backoff) Reset() {
	b.current = b.cfg.InitialWait
}

// Wait sleeps for Next() or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
