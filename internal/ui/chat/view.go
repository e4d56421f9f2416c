// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/scroll"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

const (
	headerHeight   = 2 // title line + bottom border
	footerHeight   = 3 // input border + input line + status bar
	maxNoticeLines = 12

	heldMarkerText = "▼ more below, End to follow"
)

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to what the header, notice and footer leave.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	h := m.height - headerHeight - footerHeight - m.noticeLines()
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	if m.scroll.State() == scroll.Following {
		m.viewport.GotoBottom()
	}
}

func (m *Model) noticeLines() int {
	if m.notice == "" {
		return 0
	}
	n := strings.Count(m.notice, "\n") + 1
	if n > maxNoticeLines {
		n = maxNoticeLines
	}
	return n
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting..."
	}

	parts := []string{m.headerView(), m.viewport.View()}
	if m.notice != "" {
		parts = append(parts, m.noticeView())
	}
	parts = append(parts,
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.statusView(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerView() string {
	ep, err := m.store.Snapshot()
	if err != nil {
		return renderHeader(m.theme, "no endpoint", "", "", m.width)
	}
	return renderHeader(m.theme, ep.Name, ep.Model, ep.ServerURL, m.width)
}

func (m Model) noticeView() string {
	lines := strings.Split(m.notice, "\n")
	if len(lines) > maxNoticeLines {
		lines = append(lines[:maxNoticeLines-1], "…")
	}
	text := strings.Join(lines, "\n")
	if m.noticeErr {
		return m.theme.ErrorLabel.PaddingLeft(1).Render(text)
	}
	return m.theme.Muted.PaddingLeft(1).Render(text)
}

func (m Model) statusView() string {
	var left []string
	if m.scroll.State() == scroll.Held && !m.viewport.AtBottom() {
		left = append(left, m.theme.HeldMarker.Render(heldMarkerText))
	}
	switch {
	case m.inFlight > 0:
		left = append(left, m.spinner.View()+" "+m.eng.State().String())
	case m.lastResult != nil:
		left = append(left, describeResult(*m.lastResult))
	}

	leftText := strings.Join(left, "  ")
	right := renderShortcuts(m.keys.ShortHelp(), m.theme.ShortcutKey.Render, m.theme.ShortcutDesc.Render)

	inner := m.width - 2
	gap := inner - lipgloss.Width(leftText) - lipgloss.Width(right)
	if gap < 2 {
		right = ""
		gap = inner - lipgloss.Width(leftText)
	}
	if gap < 0 {
		gap = 0
	}
	return m.theme.StatusBar.Render(leftText + strings.Repeat(" ", gap) + right)
}

// describeResult summarizes a finished send for the status bar.
func describeResult(r engine.Result) string {
	switch r.Status {
	case engine.StatusCompleted:
		if r.Deltas == 0 {
			return styles.RenderWarning(emptyReplyText(r))
		}
		return styles.RenderSuccess(fmt.Sprintf("%d chunks in %s, first after %s",
			r.Deltas, r.Duration.Round(10*time.Millisecond), r.TTFT.Round(time.Millisecond)))
	case engine.StatusFailed:
		return styles.RenderError("request failed")
	case engine.StatusCanceled:
		return styles.RenderSkipped("canceled")
	default:
		return ""
	}
}

// emptyReplyText names the server's own error when it sent one.
func emptyReplyText(r engine.Result) string {
	if r.StreamErr != nil {
		return "empty reply: " + r.StreamErr.Error()
	}
	return "empty reply"
}
