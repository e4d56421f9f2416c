// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// PARSING
// =============================================================================

// ParseResult is user input split into a command and its arguments.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is nil when CommandName is not registered.
	Command     *Command
	CommandName string
	Args        []string
}

// Parse splits input into a command name and arguments and resolves the
// name. Input that does not start with "/" is a chat message.
func (r *Registry) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	if !IsCommand(input) {
		return ParseResult{}
	}

	res := ParseResult{IsCommand: true}
	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return res
	}
	res.CommandName = strings.ToLower(parts[0])
	res.Args = parts[1:]
	res.Command = r.Get(res.CommandName)
	return res
}

// IsCommand reports whether input is a slash command. A lone "//" prefix
// escapes a message that really starts with a slash.
func IsCommand(input string) bool {
	input = strings.TrimSpace(input)
	return strings.HasPrefix(input, "/") && !strings.HasPrefix(input, "//")
}

// Unescape turns "//text" into "/text" for sending as a message.
func Unescape(input string) string {
	if trimmed := strings.TrimSpace(input); strings.HasPrefix(trimmed, "//") {
		return trimmed[1:]
	}
	return input
}

// splitCommandLine splits on whitespace outside quotes. Quotes are
// dropped; a backslash inside quotes escapes a quote or backslash.
func splitCommandLine(input string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune
	inToken := false

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0 && c == '\\' && i+1 < len(runes) && strings.ContainsRune(`"'\`, runes[i+1]):
			cur.WriteRune(runes[i+1])
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
			inToken = true
		case quote == 0 && unicode.IsSpace(c):
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(c)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateArgs checks that every required argument is present.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if def.Required && i >= len(args) {
			return &ValidationError{Command: cmd.Name, Arg: def.Name, Usage: cmd.Usage}
		}
	}
	return nil
}

// ValidationError reports a missing argument.
type ValidationError struct {
	Command string
	Arg     string
	Usage   string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": missing argument '" + e.Arg + "'"
	if e.Usage != "" {
		msg += " (usage: " + e.Usage + ")"
	}
	return msg
}
