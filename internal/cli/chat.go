// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/chatstream/internal/commands"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

var promptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)

const historyFileName = "chat_history"

// =============================================================================
// REPL
// =============================================================================

// REPL is line-mode chat. Replies are printed as their deltas arrive, or
// collected and rendered as markdown once complete when markdown is on.
type REPL struct {
	app       *App
	conv      *model.Conversation
	eng       *engine.Engine
	reg       *commands.Registry
	completer *commands.Completer

	out    io.Writer
	errOut io.Writer

	// midLine is true while reply text without a trailing newline is on
	// screen.
	midLine bool
	quit    bool

	markdown bool
	reply    strings.Builder
}

// NewREPL creates a REPL writing to app.Out and app.Err.
func NewREPL(app *App) *REPL {
	r := &REPL{
		app:    app,
		conv:   model.NewConversation(),
		reg:    commands.NewRegistry(),
		out:    app.Out,
		errOut: app.Err,

		markdown: app.Markdown && isTerminalWriter(app.Out),
	}
	r.eng = app.NewEngine(r.conv, nil)
	r.completer = commands.NewCompleter(r.reg)
	r.completer.EndpointsFn = func() []string {
		cfg := app.Store.Config()
		names := make([]string, 0, len(cfg.Endpoints))
		for _, ep := range cfg.Endpoints {
			names = append(names, ep.Name)
		}
		return names
	}
	r.conv.Subscribe(r.onEvent)
	return r
}

// commands.Env
func (r *REPL) Store() *config.Store { return r.app.Store }
func (r *REPL) Cancel() bool         { return r.eng.Cancel() }
func (r *REPL) Clear()               { r.conv.Clear() }
func (r *REPL) Quit()                { r.quit = true }

// onEvent prints reply text and error turns as the transcript changes.
func (r *REPL) onEvent(ev model.Event) {
	switch {
	case ev.Turn.IsError:
		r.flushReply()
		r.endLine()
		fmt.Fprintln(r.errOut, styles.RenderError(ev.Turn.Content))
	case ev.Delta != "" && ev.Turn.IsAssistant() && r.markdown:
		r.reply.WriteString(ev.Delta)
	case ev.Delta != "" && ev.Turn.IsAssistant():
		fmt.Fprint(r.out, ev.Delta)
		r.midLine = !strings.HasSuffix(ev.Delta, "\n")
	}
}

// flushReply renders the collected reply, if any.
func (r *REPL) flushReply() {
	if r.reply.Len() == 0 {
		return
	}
	fmt.Fprint(r.out, renderMarkdown(r.reply.String(), r.app.Theme))
	r.reply.Reset()
}

func (r *REPL) endLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

// HandleLine runs one line of input and reports whether the REPL should
// keep going.
func (r *REPL) HandleLine(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}

	if res := r.reg.Parse(line); res.IsCommand {
		out, err := r.reg.Execute(r, res)
		if err != nil {
			DisplayError(r.errOut, err)
		} else if out != "" {
			fmt.Fprintln(r.out, out)
		}
		return !r.quit
	}

	ep, err := r.app.Store.Snapshot()
	if err != nil {
		DisplayError(r.errOut, err)
		return true
	}

	res := r.eng.Send(ctx, commands.Unescape(line), ep)
	r.flushReply()
	r.endLine()
	switch res.Status {
	case engine.StatusCanceled:
		fmt.Fprintln(r.errOut, styles.RenderSkipped("canceled"))
	case engine.StatusCompleted:
		if res.Deltas == 0 {
			msg := "empty reply"
			if res.StreamErr != nil {
				msg += ": " + res.StreamErr.Error()
			}
			fmt.Fprintln(r.errOut, styles.RenderWarning(msg))
		}
	}
	return true
}

// Banner describes the active endpoint.
func (r *REPL) Banner() string {
	ep, err := r.app.Store.Snapshot()
	if err != nil {
		return styles.RenderWarning(err.Error())
	}
	return styles.RenderInfo(fmt.Sprintf("%s: %s at %s. /help for commands, Ctrl+D to quit.", ep.Name, ep.Model, ep.ServerURL))
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// RunChat runs the REPL on the terminal until /quit, Ctrl+C at the prompt
// or end of input. Ctrl+C while a reply streams cancels only the reply.
func RunChat(ctx context.Context, app *App, args Args) error {
	r := NewREPL(app)
	if args.NoMarkdown {
		r.markdown = false
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	line.SetCompleter(r.completer.Complete)

	historyPath := historyFile()
	loadHistory(line, historyPath)
	defer saveHistory(line, historyPath, app)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			r.Cancel()
		}
	}()

	if !args.Quiet {
		fmt.Fprintln(app.Out, r.Banner())
	}

	for {
		input, err := line.Prompt(promptStyle.Render("chat> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(app.Out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if !r.HandleLine(ctx, input) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

func historyFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, historyFileName)
}

func loadHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory writes the history owner-only, like the config file.
func saveHistory(line *liner.State, path string, app *App) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		app.Log.WithError(err).Debug("History directory unavailable")
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		app.Log.WithError(err).Debug("History not saved")
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		app.Log.WithError(err).Debug("History not saved")
	}
}
