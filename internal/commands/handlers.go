// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/util"
)

// ErrUnknownCommand is returned by Execute for an unregistered name.
var ErrUnknownCommand = errors.New("unknown command")

// Execute runs parsed input against env.
func (r *Registry) Execute(env Env, res ParseResult) (string, error) {
	if res.Command == nil {
		return "", fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, res.CommandName)
	}
	if err := ValidateArgs(res.Command, res.Args); err != nil {
		return "", err
	}
	return res.Command.Handler(env, res.Args)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (r *Registry) handleHelp(Env, []string) (string, error) {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, cmd := range r.All() {
		usage := cmd.Usage
		if usage == "" {
			usage = cmd.Name
		}
		fmt.Fprintf(&b, "  %s %s\n", util.PadRight(usage, 18), cmd.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func handleQuit(env Env, _ []string) (string, error) {
	env.Cancel()
	env.Quit()
	return "", nil
}

func handleClear(env Env, _ []string) (string, error) {
	env.Cancel()
	env.Clear()
	return "Conversation cleared.", nil
}

func handleCancel(env Env, _ []string) (string, error) {
	if env.Cancel() {
		return "Reply canceled.", nil
	}
	return "Nothing to cancel.", nil
}

func handleEndpoint(env Env, args []string) (string, error) {
	store := env.Store()
	if len(args) > 0 {
		key := strings.Join(args, " ")
		if err := store.Update(func(cfg *config.Config) error { return cfg.SetActive(key) }); err != nil {
			return "", err
		}
	}
	ep, err := store.Snapshot()
	if err != nil {
		return "", err
	}
	verb := "Active"
	if len(args) > 0 {
		verb = "Switched to"
	}
	return fmt.Sprintf("%s %s: %s at %s", verb, ep.Name, ep.Model, ep.ServerURL), nil
}

func handleEndpoints(env Env, _ []string) (string, error) {
	return FormatEndpoints(env.Store().Config()), nil
}

func handleModel(env Env, args []string) (string, error) {
	name := strings.TrimSpace(strings.Join(args, " "))
	err := env.Store().Update(func(cfg *config.Config) error {
		return cfg.EditActive(func(ep *config.Endpoint) { ep.Model = name })
	})
	if err != nil {
		return "", err
	}
	return "Model set to " + name + ".", nil
}

// FormatEndpoints lists saved endpoints, marking the active one with "*".
func FormatEndpoints(cfg *config.Config) string {
	active, _ := cfg.ActiveEndpoint()
	var b strings.Builder
	for _, ep := range cfg.Endpoints {
		mark := " "
		if ep.ID == active.ID {
			mark = "*"
		}
		key := ""
		if ep.APIKey != "" {
			key = " (key)"
		}
		fmt.Fprintf(&b, "%s %s  %s  %s%s\n", mark, util.PadRight(ep.Name, 16), util.PadRight(ep.Model, 14), ep.ServerURL, key)
	}
	return strings.TrimRight(b.String(), "\n")
}
