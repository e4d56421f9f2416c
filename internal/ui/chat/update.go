// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatstream/internal/commands"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/scroll"
)

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		before := m.viewport.YOffset
		m.viewport, cmd = m.viewport.Update(msg)
		if m.viewport.YOffset != before {
			m.userScrolled()
		}
		return m, cmd

	case transcriptChangedMsg:
		cmds := []tea.Cmd{waitForEvent(m.ctx, m.events)}
		if m.redraw.Allow() {
			m.refresh()
		} else if cmd := m.redraw.Defer(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case redrawMsg:
		m.redraw.Done()
		m.refresh()
		return m, nil

	case sendDoneMsg:
		return m.handleSendDone(msg.result)

	case scrollTickMsg:
		return m.animateScroll()

	case spinner.TickMsg:
		if m.inFlight == 0 {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConfigReloadedMsg:
		m.input.SetSuggestions(m.completer.Suggestions())
		m.setNotice("Configuration reloaded.", nil)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m *Model) handleResize(width, height int) {
	m.width, m.height = width, height
	if !m.ready {
		m.viewport = viewport.New(width, 1)
		m.ready = true
	}
	m.viewport.Width = width
	m.input.Width = width - 4
	m.md.SetWidth(width - 2)
	m.layout()
	m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.eng.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.eng.Cancel() {
			m.setNotice("Reply canceled.", nil)
		} else if m.notice != "" {
			m.setNotice("", nil)
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		env := tuiEnv{m: &m}
		env.Cancel()
		env.Clear()
		m.setNotice("", nil)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		m.userScrolled()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		m.userScrolled()
		return m, nil

	case key.Matches(msg, m.keys.LineUp):
		m.viewport.LineUp(1)
		m.userScrolled()
		return m, nil

	case key.Matches(msg, m.keys.LineDown):
		m.viewport.LineDown(1)
		m.userScrolled()
		return m, nil

	case key.Matches(msg, m.keys.End):
		if m.scroll.OnScrollToBottom() == scroll.AnimateToBottom && !m.viewport.AtBottom() {
			m.animating = true
			return m, scrollTick()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSendDone(res engine.Result) (tea.Model, tea.Cmd) {
	if m.inFlight > 0 {
		m.inFlight--
	}
	if res.Status != engine.StatusSuperseded && res.Status != engine.StatusSkipped {
		m.lastResult = &res
	}
	m.log.WithField("status", res.Status.String()).Debug("Reply finished")
	m.refresh()
	return m, nil
}

// =============================================================================
// INPUT SUBMISSION
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.Reset()

	if res := m.cmds.Parse(text); res.IsCommand {
		out, err := m.cmds.Execute(tuiEnv{m: &m}, res)
		if err != nil {
			m.log.WithError(err).WithField("command", res.CommandName).Debug("Command failed")
		}
		if m.quitting {
			return m, tea.Quit
		}
		m.setNotice(out, err)
		m.input.SetSuggestions(m.completer.Suggestions())
		m.refresh()
		return m, nil
	}

	ep, err := m.store.Snapshot()
	if err != nil {
		m.setNotice("", err)
		return m, nil
	}
	m.setNotice("", nil)

	m.inFlight++
	cmds := []tea.Cmd{m.sendCmd(commands.Unescape(text), ep)}
	if !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

// sendCmd runs one send on the command goroutine. Transcript updates reach
// the model through the conversation observer while it runs.
func (m Model) sendCmd(text string, ep config.Endpoint) tea.Cmd {
	eng, ctx := m.eng, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{result: eng.Send(ctx, text, ep)}
	}
}

// =============================================================================
// VIEWPORT UPDATE
// =============================================================================

// refresh re-renders the transcript and applies the follow policy.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.conv.Snapshot(), m.theme, m.md, m.width))
	if m.scroll.OnContentChanged() == scroll.SnapToBottom {
		m.animating = false
		m.viewport.GotoBottom()
	}
}

// userScrolled reports a user-driven scroll to the controller.
func (m *Model) userScrolled() {
	m.animating = false
	m.scroll.OnUserScroll(m.viewport.YOffset, m.viewport.Height, m.viewport.TotalLineCount())
}

// animateScroll moves a quarter of the remaining distance per tick, at least
// one line.
func (m Model) animateScroll() (tea.Model, tea.Cmd) {
	if !m.animating {
		return m, nil
	}
	remaining := scroll.DistanceFromBottom(m.viewport.YOffset, m.viewport.Height, m.viewport.TotalLineCount())
	if remaining <= 0 {
		m.animating = false
		return m, nil
	}
	step := remaining / 4
	if step < 1 {
		step = 1
	}
	m.viewport.LineDown(step)
	if m.viewport.AtBottom() {
		m.animating = false
		return m, nil
	}
	return m, scrollTick()
}

func (m *Model) setNotice(text string, err error) {
	m.noticeErr = err != nil
	if err != nil {
		text = err.Error()
	}
	m.notice = text
	m.layout()
}
