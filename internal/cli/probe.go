// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openai"
	"github.com/jeranaias/chatstream/internal/ui/styles"
	"github.com/jeranaias/chatstream/internal/util"
)

// ErrProbeFailed is returned when at least one probe check failed.
var ErrProbeFailed = &openai.ClientError{Type: openai.ErrTypeConnection, Message: "endpoint check failed"}

// =============================================================================
// PROBE COMMAND
// =============================================================================

// HandleProbe checks the named endpoint, or the active one.
func HandleProbe(ctx context.Context, app *App, args Args) error {
	cfg := app.Store.Config()
	var ep config.Endpoint
	if len(args.Raw) > 0 {
		found, ok := cfg.FindEndpoint(args.Raw[0])
		if !ok {
			return fmt.Errorf("%w: %q not found", config.ErrNoEndpoint, args.Raw[0])
		}
		ep = found
	} else {
		active, err := cfg.ActiveEndpoint()
		if err != nil {
			return err
		}
		ep = active
	}

	report := app.Client.Probe(ctx, ep)
	printProbeReport(app.Out, ep, report)
	if !report.OK() {
		return ErrProbeFailed
	}
	return nil
}

func printProbeReport(w io.Writer, ep config.Endpoint, report openai.ProbeReport) {
	fmt.Fprintf(w, "%s (%s)\n", ep.Name, ep.Model)
	for _, c := range report.Checks {
		fmt.Fprintf(w, "  %s\n", renderCheck(c.Status, util.PadRight(c.Name, 10)+c.Detail))
	}
	if report.Reply != "" {
		fmt.Fprintf(w, "  reply: %s\n", util.TruncateWidth(report.Reply, 60))
	}
	if report.Latency > 0 {
		fmt.Fprintf(w, "  latency: %s\n", report.Latency.Round(time.Millisecond))
	}
}

func renderCheck(s openai.CheckStatus, line string) string {
	switch s {
	case openai.CheckOK:
		return styles.RenderSuccess(line)
	case openai.CheckWarning:
		return styles.RenderWarning(line)
	case openai.CheckFailed:
		return styles.RenderError(line)
	default:
		return styles.RenderSkipped(line)
	}
}
