// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/engine"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// maxStdinQuery bounds a question read from a pipe.
const maxStdinQuery = 1 << 20

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAsk sends one question and streams the reply to app.Out. On a
// terminal with markdown enabled the reply is collected and rendered once
// it is complete.
func HandleAsk(ctx context.Context, app *App, args Args) error {
	query := args.Query
	if query == "-" || (query == "" && !IsTTY()) {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinQuery))
		if err != nil {
			return fmt.Errorf("read question from stdin: %w", err)
		}
		query = string(b)
	}
	if strings.TrimSpace(query) == "" {
		return ErrMissingArgument("question", `chatstream ask "What is a goroutine?"`)
	}

	ep, err := app.Store.Snapshot()
	if err != nil {
		return err
	}

	render := app.Markdown && !args.NoMarkdown && isTerminalWriter(app.Out)

	conv := model.NewConversation()
	eng := app.NewEngine(conv, nil)

	var reply strings.Builder
	wrote := false
	unsubscribe := conv.Subscribe(func(ev model.Event) {
		if ev.Delta == "" || ev.Turn.IsError || ev.Turn.IsUser() {
			return
		}
		if render {
			reply.WriteString(ev.Delta)
			return
		}
		fmt.Fprint(app.Out, ev.Delta)
		wrote = true
	})
	defer unsubscribe()

	res := eng.Send(ctx, query, ep)

	if render && reply.Len() > 0 {
		fmt.Fprint(app.Out, renderMarkdown(reply.String(), app.Theme))
	} else if wrote && !strings.HasSuffix(lastTurnContent(conv), "\n") {
		fmt.Fprintln(app.Out)
	}

	switch res.Status {
	case engine.StatusCompleted:
		if !args.Quiet {
			fmt.Fprintln(app.Err, describeSend(ep.Model, res))
		}
		return nil
	case engine.StatusCanceled:
		return ErrCanceled
	default:
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("request %s", res.Status)
	}
}

// lastTurnContent returns the content of the most recent non-error
// assistant turn.
func lastTurnContent(conv *model.Conversation) string {
	turns := conv.Snapshot()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].IsAssistant() && !turns[i].IsError {
			return turns[i].Content
		}
	}
	return ""
}

// describeSend is the one-line summary printed after a reply.
func describeSend(modelName string, res engine.Result) string {
	if res.Deltas == 0 {
		msg := modelName + " returned an empty reply"
		if res.StreamErr != nil {
			msg += ": " + res.StreamErr.Error()
		}
		return styles.RenderWarning(msg)
	}
	return styles.RenderInfo(fmt.Sprintf("%s: %d chunks in %s (first after %s)",
		modelName, res.Deltas, res.Duration.Round(10*time.Millisecond), res.TTFT.Round(time.Millisecond)))
}
