// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the non-TUI commands of chatstream.
//
// # Commands
//
//   - chat: line-mode chat with liner history and slash commands
//   - ask: one question, streamed to stdout
//   - probe: URL, transport and reachability checks for an endpoint
//   - endpoints: list, add, use, rm and rename saved endpoints
//   - version, help
//
// Every command runs against an App, which holds the configuration store,
// the HTTP client and the output writers, so commands can be exercised
// with buffers instead of a terminal.
//
// # Exit Codes
//
// GetExitCode maps errors to exit codes: 2 for usage errors, 3 for
// configuration errors, 5 for server errors, 8 for timeouts and 130 when
// the user canceled.
package cli
