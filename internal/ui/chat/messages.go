// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/engine"
)

// =============================================================================
// MESSAGES
// =============================================================================

// transcriptChangedMsg is delivered after the conversation emitted at least
// one event since the last delivery.
type transcriptChangedMsg struct{}

// redrawMsg fires when a deferred frame is due.
type redrawMsg struct{}

// scrollTickMsg advances the scroll-to-bottom animation by one step.
type scrollTickMsg struct{}

// sendDoneMsg carries the outcome of one Engine.Send.
type sendDoneMsg struct {
	result engine.Result
}

// ConfigReloadedMsg tells the model the configuration store changed on
// disk. Send it with tea.Program.Send from a Store.OnChange callback.
type ConfigReloadedMsg struct{}

// =============================================================================
// COMMANDS
// =============================================================================

const scrollAnimationInterval = 16 * time.Millisecond

// waitForEvent blocks until the conversation signals a change. It is
// re-issued after every delivery so at most one wait is outstanding.
func waitForEvent(ctx context.Context, events <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-events:
			return transcriptChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func scrollTick() tea.Cmd {
	return tea.Tick(scrollAnimationInterval, func(time.Time) tea.Msg {
		return scrollTickMsg{}
	})
}
