// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the chat transcript and its turns.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one entry of the transcript. Turns handed out by a Conversation
// are copies; mutating them has no effect on the transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsError marks a synthetic assistant turn that reports a failed request.
	IsError bool `json:"is_error,omitempty"`

	// SessionID links assistant turns to the send that produced them.
	SessionID string `json:"session_id,omitempty"`
}

// IsUser reports whether the user authored the turn.
func (t Turn) IsUser() bool {
	return t.Role == RoleUser
}

// IsAssistant reports whether the turn came from the model or is an error
// shown in its place.
func (t Turn) IsAssistant() bool {
	return t.Role == RoleAssistant
}

// entry is the mutable, in-transcript form of a turn.
// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
type entry struct {
	id        string
	role      Role
	content   strings.Builder
	timestamp time.Time
	isError   bool
	sessionID string
}

func newEntry(role Role, content, sessionID string) *entry {
	e := &entry{
		id:        generateID(),
		role:      role,
		timestamp: time.Now(),
		sessionID: sessionID,
	}
	e.content.WriteString(content)
	return e
}

// turn returns an immutable copy of the entry.
func (e *entry) turn() Turn {
	return Turn{
		ID:        e.id,
		Role:      e.role,
		Content:   e.content.String(),
		Timestamp: e.timestamp,
		IsError:   e.isError,
		SessionID: e.sessionID,
	}
}

// generateID creates a unique turn ID.
func generateID() string {
	return "turn_" + uuid.NewString()
}
