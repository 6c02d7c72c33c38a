// Package connectivity watches whether the collection server is reachable
// and reports transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pinger checks reachability. A nil error means online.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChangeFunc is called with the new state whenever reachability flips. The
// first probe always reports.
type ChangeFunc func(ctx context.Context, online bool)

type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	onChange ChangeFunc
	logger   zerolog.Logger

	mu    sync.Mutex
	known bool
	state bool
}

func NewMonitor(pinger Pinger, interval time.Duration, onChange ChangeFunc, logger zerolog.Logger) *Monitor {
	timeout := interval
	if timeout <= 0 || timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		onChange: onChange,
		logger:   logger.With().Str("component", "connectivity").Logger(),
	}
}

// Online returns the last observed state and whether any probe has run.
func (m *Monitor) Online() (online, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.known
}

// Probe runs one check and reports a transition if there was one.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.state != online
	m.known = true
	m.state = online
	m.mu.Unlock()

	if changed {
		if err != nil {
			m.logger.Info().Err(err).Msg("server unreachable")
		} else {
			m.logger.Info().Msg("server reachable")
		}
		if m.onChange != nil {
			m.onChange(ctx, online)
		}
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
