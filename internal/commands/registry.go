// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"

	"github.com/jeranaias/chatstream/internal/config"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Env is what a command may act on. The TUI and the line REPL each
// provide one.
type Env interface {
	Store() *config.Store
	// Cancel stops the in-flight send and reports whether there was one.
	Cancel() bool
	// Clear empties the transcript.
	Clear()
	// Quit ends the session after the command returns.
	Quit()
}

// Handler runs a command and returns text to show the user.
type Handler func(env Env, args []string) (string, error)

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	Args []ArgDef

	Handler Handler
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString   ArgType = iota // Free-form string
	ArgTypeEndpoint                // Saved endpoint name
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Handler:     r.handleHelp,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit chatstream",
		Handler:     handleQuit,
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/new"},
		Description: "Cancel any reply and clear the conversation",
		Handler:     handleClear,
	})

	r.Register(&Command{
		Name:        "/cancel",
		Aliases:     []string{"/stop"},
		Description: "Stop the reply that is streaming",
		Handler:     handleCancel,
	})

	r.Register(&Command{
		Name:        "/endpoint",
		Aliases:     []string{"/use"},
		Description: "Show or switch the active endpoint",
		Usage:       "/endpoint [name]",
		Args: []ArgDef{
			{Name: "name", Type: ArgTypeEndpoint, Description: "saved endpoint name or id"},
		},
		Handler: handleEndpoint,
	})

	r.Register(&Command{
		Name:        "/endpoints",
		Aliases:     []string{"/ls"},
		Description: "List saved endpoints",
		Handler:     handleEndpoints,
	})

	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Set the model of the active endpoint",
		Usage:       "/model <name>",
		Args: []ArgDef{
			{Name: "name", Required: true, Type: ArgTypeString, Description: "model name"},
		},
		Handler: handleModel,
	})
}
