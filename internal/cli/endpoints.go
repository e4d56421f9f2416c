// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/jeranaias/chatstream/internal/commands"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// ENDPOINTS COMMAND
// =============================================================================

// HandleEndpoints manages saved endpoints. Every change goes through
// Store.Update, so it is validated and saved atomically.
func HandleEndpoints(app *App, args Args) error {
	var rest []string
	if len(args.Raw) > 1 {
		rest = args.Raw[1:]
	}

	switch args.Subcommand {
	case "", "list", "ls":
		fmt.Fprintln(app.Out, commands.FormatEndpoints(app.Store.Config()))
		return nil
	case "add":
		return endpointsAdd(app, rest)
	case "use", "select":
		if len(rest) < 1 {
			return ErrMissingArgument("name", "chatstream endpoints use <name>")
		}
		return endpointsChange(app, "Active endpoint is now "+rest[0], func(cfg *config.Config) error {
			return cfg.SetActive(rest[0])
		})
	case "rm", "remove", "delete":
		if len(rest) < 1 {
			return ErrMissingArgument("name", "chatstream endpoints rm <name>")
		}
		return endpointsChange(app, "Removed "+rest[0], func(cfg *config.Config) error {
			return cfg.RemoveEndpoint(rest[0])
		})
	case "rename", "mv":
		if len(rest) < 2 {
			return ErrMissingArgument("new-name", "chatstream endpoints rename <name> <new-name>")
		}
		return endpointsChange(app, "Renamed "+rest[0]+" to "+rest[1], func(cfg *config.Config) error {
			return cfg.RenameEndpoint(rest[0], rest[1])
		})
	default:
		return &ValidationError{Field: "subcommand", Value: args.Subcommand, Reason: "unknown", Example: "chatstream endpoints add http://localhost:11434/v1/chat/completions"}
	}
}

func endpointsChange(app *App, done string, fn func(*config.Config) error) error {
	if err := app.Store.Update(fn); err != nil {
		return err
	}
	fmt.Fprintln(app.Out, styles.RenderSuccess(done))
	return nil
}

// endpointsAdd parses "add <url> [flags]". Sampling parameters that are not
// given start from the defaults.
func endpointsAdd(app *App, raw []string) error {
	p := NewArgParser(raw, "use")
	url := p.Positional(0)
	if url == "" {
		return ErrMissingArgument("url", "chatstream endpoints add http://localhost:11434/v1/chat/completions --model llama3.2")
	}

	defaults := config.DefaultEndpoint()
	ep := config.Endpoint{
		Name:             p.Flag("name", "n"),
		ServerURL:        url,
		Model:            p.Flag("model", "m"),
		APIKey:           p.Flag("key", "api-key"),
		Temperature:      defaults.Temperature,
		MaxTokens:        defaults.MaxTokens,
		TopP:             defaults.TopP,
		FrequencyPenalty: defaults.FrequencyPenalty,
		PresencePenalty:  defaults.PresencePenalty,
	}

	var err error
	if ep.MaxTokens, err = p.FlagInt(ep.MaxTokens, "max-tokens"); err != nil {
		return err
	}
	floats := []struct {
		flag string
		dst  *float64
	}{
		{"temperature", &ep.Temperature},
		{"top-p", &ep.TopP},
		{"frequency-penalty", &ep.FrequencyPenalty},
		{"presence-penalty", &ep.PresencePenalty},
	}
	for _, f := range floats {
		if v := p.Flag(f.flag); v != "" {
			if *f.dst, err = ParseFloatFlag("--"+f.flag, v); err != nil {
				return err
			}
		}
	}

	var saved config.Endpoint
	err = app.Store.Update(func(cfg *config.Config) error {
		added, err := cfg.AddEndpoint(ep)
		if err != nil {
			return err
		}
		saved = added
		if p.BoolFlag("use") {
			return cfg.SetActive(added.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(app.Out, styles.RenderSuccess(fmt.Sprintf("Saved %s: %s at %s", saved.Name, saved.Model, saved.ServerURL)))
	return nil
}
