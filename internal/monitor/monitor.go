// Package monitor tracks whether the Obsidian endpoint is reachable.
//
// A single loop owns the probing; consumers read the last-known state
// without blocking and may request an immediate re-check (settings changes
// do exactly that).
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is the tri-state connectivity status surfaced to the UI.
type State string

const (
	StateChecking     State = "checking"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// CheckFunc performs one connectivity evaluation. Implementations must
// return StateDisconnected without touching the network when no API key is
// configured.
type CheckFunc func(ctx context.Context) State

// Monitor polls a CheckFunc on a fixed interval.
type Monitor struct {
	interval time.Duration
	check    CheckFunc
	onChange func(State)
	logger   *slog.Logger

	state     atomic.Value // State
	recheckCh chan struct{}
}

// New creates a monitor. onChange (optional) fires on every state
// transition, including the initial checking state.
func New(interval time.Duration, check CheckFunc, onChange func(State), logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		interval:  interval,
		check:     check,
		onChange:  onChange,
		logger:    logger,
		recheckCh: make(chan struct{}, 1),
	}
	m.state.Store(StateChecking)
	return m
}

// State returns the last-known connectivity state without blocking.
func (m *Monitor) State() State {
	return m.state.Load().(State)
}

// Recheck requests an immediate re-evaluation. Safe from any goroutine;
// coalesces with an already pending request.
func (m *Monitor) Recheck() {
	select {
	case m.recheckCh <- struct{}{}:
	default:
	}
}

// Run probes immediately and then on every tick or re-check request until
// ctx is cancelled. The checking state never persists past one probe: every
// evaluation lands on connected or disconnected.
func (m *Monitor) Run(ctx context.Context) error {
	m.evaluate(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor: stopped")
			return nil
		case <-ticker.C:
			m.evaluate(ctx)
		case <-m.recheckCh:
			m.evaluate(ctx)
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	next := m.check(ctx)
	prev := m.state.Swap(next).(State)
	if prev == next {
		return
	}
	m.logger.Info("monitor: state changed",
		slog.String("from", string(prev)), slog.String("to", string(next)))
	if m.onChange != nil {
		m.onChange(next)
	}
}
