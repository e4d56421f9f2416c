// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/commands"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/scroll"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options wires a Model to the rest of the application.
type Options struct {
	Engine *engine.Engine
	Store  *config.Store

	// Scroll must be the controller the engine resets on every send.
	Scroll *scroll.Controller

	Theme    *styles.Theme
	Commands *commands.Registry

	// Markdown renders assistant replies with glamour.
	Markdown bool
	// MaxFPS caps redraws while streaming. Zero means uncapped.
	MaxFPS int

	Log *logrus.Entry
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	eng       *engine.Engine
	conv      *model.Conversation
	store     *config.Store
	scroll    *scroll.Controller
	theme     *styles.Theme
	cmds      *commands.Registry
	completer *commands.Completer
	md        *markdownRenderer
	redraw    *redrawGate
	keys      KeyMap
	log       *logrus.Entry

	// events carries one pending change signal from the conversation
	// observer to waitForEvent.
	events      chan struct{}
	unsubscribe func()
	ctx         context.Context
	stop        context.CancelFunc

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	// animating is true while End is scrolling toward the bottom.
	animating bool
	inFlight  int
	spinning  bool
	quitting  bool

	notice     string
	noticeErr  bool
	lastResult *engine.Result
}

// New creates the chat model and subscribes it to the engine's
// conversation. Call Close when the program exits.
func New(opts Options) Model {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	reg := opts.Commands
	if reg == nil {
		reg = commands.NewRegistry()
	}

	m := Model{
		eng:    opts.Engine,
		conv:   opts.Engine.Conversation(),
		store:  opts.Store,
		scroll: opts.Scroll,
		theme:  theme,
		cmds:   reg,
		md:     newMarkdownRenderer(theme.GlamourStyle(), opts.Markdown, log),
		redraw: newRedrawGate(opts.MaxFPS),
		keys:   DefaultKeyMap(),
		log:    log.WithField("component", "tui"),
		events: make(chan struct{}, 1),
	}
	if m.scroll == nil {
		m.scroll = scroll.NewController(scroll.DefaultTolerance)
	}

	m.completer = commands.NewCompleter(reg)
	store := opts.Store
	m.completer.EndpointsFn = func() []string { return endpointNames(store) }

	m.input = textinput.New()
	m.input.Prompt = theme.InputPrompt.Render("> ")
	m.input.Placeholder = "Message, or /help"
	m.input.ShowSuggestions = true
	m.input.SetSuggestions(m.completer.Suggestions())
	m.input.Focus()

	m.spinner = spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m.ctx, m.stop = context.WithCancel(context.Background())
	events := m.events
	m.unsubscribe = m.conv.Subscribe(func(model.Event) {
		select {
		case events <- struct{}{}:
		default:
		}
	})
	return m
}

// Close cancels any reply in flight and detaches from the conversation.
func (m Model) Close() {
	m.stop()
	m.unsubscribe()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.ctx, m.events))
}

func endpointNames(store *config.Store) []string {
	if store == nil {
		return nil
	}
	cfg := store.Config()
	names := make([]string, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		names = append(names, ep.Name)
	}
	return names
}

// =============================================================================
// COMMAND ENVIRONMENT
// =============================================================================

// tuiEnv exposes the model to slash command handlers.
type tuiEnv struct {
	m *Model
}

func (e tuiEnv) Store() *config.Store { return e.m.store }
func (e tuiEnv) Cancel() bool         { return e.m.eng.Cancel() }
func (e tuiEnv) Quit()                { e.m.quitting = true }

func (e tuiEnv) Clear() {
	e.m.conv.Clear()
	e.m.lastResult = nil
	e.m.scroll.OnScrollToBottom()
}
