package syncengine

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultInterval    = 30 * time.Second
)

// Sleeper waits between upload attempts. Tests swap in one that returns
// immediately.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets how many times one record is tried per pass.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the backoff unit: after failed attempt k the engine
// waits k times this delay.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

// WithInterval sets the periodic trigger used by Run.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleeper = s
		}
	}
}

// WithOnline sets the initial reachability. Engines start offline.
func WithOnline(online bool) Option {
	return func(e *Engine) {
		e.online = online
	}
}
