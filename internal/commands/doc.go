// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the TUI and the
// line REPL.
//
// # Built-in Commands
//
//   - /help: Show available commands
//   - /clear: Cancel any reply and clear the conversation
//   - /cancel: Stop the streaming reply
//   - /endpoint [name]: Show or switch the active endpoint
//   - /endpoints: List saved endpoints
//   - /model <name>: Set the active endpoint's model
//   - /quit: Exit
//
// # Usage
//
//	reg := commands.NewRegistry()
//	if res := reg.Parse(input); res.IsCommand {
//	    out, err := reg.Execute(env, res)
//	}
package commands
