// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/openai"
	"github.com/jeranaias/chatstream/internal/ui/styles"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the server could not be reached or failed
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitCanceled follows the shell convention for SIGINT.
	ExitCanceled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError is a bad command-line value.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required", Example: usage}
}

// ErrCanceled is returned when the user interrupts a one-shot request.
var ErrCanceled = errors.New("canceled")

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}
	if errors.Is(err, ErrCanceled) {
		return ExitCanceled
	}

	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) || errors.Is(err, config.ErrNoEndpoint) {
		return ExitConfigError
	}

	var clientErr *openai.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case openai.ErrTypeTimeout:
			return ExitTimeoutError
		case openai.ErrTypeCanceled:
			return ExitCanceled
		case openai.ErrTypeInvalidRequest:
			return ExitUsageError
		default:
			return ExitNetworkError
		}
	}

	return ExitGeneralError
}

// DisplayError prints err to w with the error marker.
func DisplayError(w io.Writer, err error) {
	fmt.Fprintln(w, styles.RenderError(err.Error()))
}
