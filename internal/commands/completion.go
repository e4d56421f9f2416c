// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer produces whole-line completions for commands and their
// endpoint arguments.
type Completer struct {
	registry *Registry

	// EndpointsFn returns the saved endpoint names.
	EndpointsFn func() []string
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns full input lines that extend line. Matching is case
// insensitive; results are sorted.
func (c *Completer) Complete(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}

	name, rest, hasArgs := strings.Cut(line, " ")
	if !hasArgs {
		return c.completeCommands(name)
	}

	cmd := c.registry.Get(strings.ToLower(name))
	if cmd == nil || len(cmd.Args) == 0 || cmd.Args[0].Type != ArgTypeEndpoint || c.EndpointsFn == nil {
		return nil
	}
	var out []string
	for _, ep := range c.EndpointsFn() {
		if hasPrefixFold(ep, rest) {
			out = append(out, name+" "+ep)
		}
	}
	sort.Strings(out)
	return out
}

// Suggestions lists every command name plus "/endpoint <name>" for each
// saved endpoint, for inputs that filter by prefix themselves.
func (c *Completer) Suggestions() []string {
	var out []string
	for _, cmd := range c.registry.All() {
		out = append(out, cmd.Name)
	}
	if c.EndpointsFn != nil {
		for _, ep := range c.EndpointsFn() {
			out = append(out, "/endpoint "+ep)
		}
	}
	return out
}

func (c *Completer) completeCommands(partial string) []string {
	var out []string
	for _, cmd := range c.registry.All() {
		if hasPrefixFold(cmd.Name, partial) {
			out = append(out, cmd.Name)
		}
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
