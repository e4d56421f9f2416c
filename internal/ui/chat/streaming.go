// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"
)

// =============================================================================
// REDRAW GATE
// =============================================================================

// redrawGate caps how often streamed content is re-rendered. A change that
// arrives too soon after the last frame is not dropped: it schedules one
// deferred frame, and further changes ride on that frame.
//
// The gate is only touched from the Bubble Tea update loop, so it needs no
// locking.
type redrawGate struct {
	limiter  *rate.Limiter
	interval time.Duration
	pending  bool
}

// newRedrawGate creates a gate allowing maxFPS frames per second. A
// non-positive maxFPS disables the cap.
func newRedrawGate(maxFPS int) *redrawGate {
	if maxFPS <= 0 {
		return &redrawGate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	interval := time.Second / time.Duration(maxFPS)
	return &redrawGate{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Allow reports whether a frame may be drawn now. It is false while a
// deferred frame is pending.
func (g *redrawGate) Allow() bool {
	if g.pending {
		return false
	}
	return g.limiter.Allow()
}

// Defer schedules a frame one interval from now. It returns nil when a
// frame is already scheduled.
func (g *redrawGate) Defer() tea.Cmd {
	if g.pending {
		return nil
	}
	g.pending = true
	return tea.Tick(g.interval, func(time.Time) tea.Msg {
		return redrawMsg{}
	})
}

// Done marks the deferred frame as drawn.
func (g *redrawGate) Done() {
	g.pending = false
}
