// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat-completions client.
type ClientError struct {
	Type    ErrorType
	Message string

	// StatusCode is set for ErrTypeStatus.
	StatusCode int

	Cause error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeConnection: the server could not be reached or the connection dropped.
	ErrTypeConnection
	// ErrTypeTimeout: a deadline expired before the server answered.
	ErrTypeTimeout
	// ErrTypeCanceled: the caller canceled the request.
	ErrTypeCanceled
	// ErrTypeStatus: the server answered with a non-2xx status.
	ErrTypeStatus
	// ErrTypeNoBody: the response carried no readable body.
	ErrTypeNoBody
	// ErrTypeInvalidRequest: the request could not be built.
	ErrTypeInvalidRequest
	// ErrTypeInvalidResponse: a non-streaming response could not be decoded.
	ErrTypeInvalidResponse
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeStatus:
		return "status"
	case ErrTypeNoBody:
		return "no_body"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrTimeout = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNoBody  = &ClientError{Type: ErrTypeNoBody, Message: "response has no readable body"}
)

// statusError builds the error for a non-2xx response. detail is the
// server's own message, if it sent one.
func statusError(code int, status, detail string) *ClientError {
	msg := fmt.Sprintf("request failed with status %s", status)
	if status == "" {
		msg = fmt.Sprintf("request failed with status %d", code)
	}
	if detail != "" {
		msg += ": " + detail
	}
	return &ClientError{Type: ErrTypeStatus, Message: msg, StatusCode: code}
}

// transportError classifies an error from http.Client.Do or a body read.
func transportError(err error) *ClientError {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "connection failed", Cause: err}
}

// ReadError classifies a failure while reading a response body that the
// server had already started sending.
func ReadError(err error) error {
	ce := *transportError(err)
	if ce.Type == ErrTypeConnection {
		ce.Message = "connection lost while reading the response"
	}
	return &ce
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func isType(err error, t ErrorType) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return isType(err, ErrTypeTimeout)
}

// IsConnection returns true if the server could not be reached.
func IsConnection(err error) bool {
	return isType(err, ErrTypeConnection)
}

// IsCanceled returns true if the caller canceled the request.
func IsCanceled(err error) bool {
	return isType(err, ErrTypeCanceled) || errors.Is(err, context.Canceled)
}

// IsStatus returns true if the server answered with a non-2xx status.
func IsStatus(err error) bool {
	return isType(err, ErrTypeStatus)
}

// StatusCode returns the HTTP status of a status error, or 0.
func StatusCode(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) && ce.Type == ErrTypeStatus {
		return ce.StatusCode
	}
	return 0
}
