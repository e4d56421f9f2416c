// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleDisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{Role("custom"), "custom"},
	}
	for _, tt := range tests {
		if got := tt.role.DisplayName(); got != tt.want {
			t.Errorf("Role(%q).DisplayName() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestApplyDelta_FoldsIntoOneTurn(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("Hi")

	require.True(t, c.ApplyDelta(s, "Hel"))
	require.True(t, c.ApplyDelta(s, "lo"))

	turns := c.Snapshot()
	require.Len(t, turns, 2)
	assert.True(t, turns[0].IsUser())
	assert.Equal(t, "Hi", turns[0].Content)
	assert.False(t, turns[1].IsUser())
	assert.Equal(t, "Hello", turns[1].Content)
	assert.Equal(t, s.ID, turns[1].SessionID)
}

func TestClear_InvalidatesSession(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")
	c.Clear()

	// Clearing invalidates the session.
	assert.False(t, c.ApplyDelta(s, "x"))
	assert.Equal(t, 0, c.Len())
}

func TestApplyUserMessage_ClosesOpenAssistantTurn(t *testing.T) {
	c := NewConversation()
	s1 := c.ApplyUserMessage("first")
	c.ApplyDelta(s1, "answer one")

	s2 := c.ApplyUserMessage("second")
	assert.False(t, c.ApplyDelta(s1, " late"), "stale session must be rejected")
	require.True(t, c.ApplyDelta(s2, "answer two"))

	turns := c.Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, "answer one", turns[1].Content)
	assert.True(t, turns[2].IsUser())
	assert.Equal(t, "answer two", turns[3].Content)
}

func TestApplyDelta_EmptyDeltaIsNoop(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")
	assert.True(t, c.ApplyDelta(s, ""))
	assert.Equal(t, 1, c.Len())
}

func TestCloseSession_RejectsLaterDeltas(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")
	c.ApplyDelta(s, "done")
	c.CloseSession(s)

	assert.False(t, c.ApplyDelta(s, "more"))
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "done", last.Content)

	_, open := c.Current()
	assert.False(t, open)
	assert.True(t, c.IsCurrent(s))
}

func TestAppendError(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")
	c.ApplyDelta(s, "partial")

	require.True(t, c.AppendError(s, "Error: connection reset"))
	turns := c.Snapshot()
	require.Len(t, turns, 3)
	assert.Equal(t, "partial", turns[1].Content)
	assert.True(t, turns[2].IsError)
	assert.True(t, turns[2].IsAssistant())
	assert.Equal(t, "Error: connection reset", turns[2].Content)

	assert.False(t, c.ApplyDelta(s, "x"), "error closes the session")
}

func TestAppendError_StaleSession(t *testing.T) {
	c := NewConversation()
	s1 := c.ApplyUserMessage("a")
	c.ApplyUserMessage("b")
	assert.False(t, c.AppendError(s1, "Error: old"))
	assert.Equal(t, 2, c.Len())
}

func TestZeroSessionNeverAccepted(t *testing.T) {
	c := NewConversation()
	assert.False(t, c.ApplyDelta(Session{}, "x"))
	assert.False(t, c.AppendError(Session{}, "x"))
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")
	c.ApplyDelta(s, "a")

	snap := c.Snapshot()
	snap[1].Content = "mutated"
	c.ApplyDelta(s, "b")

	assert.Equal(t, "mutated", snap[1].Content)
	last, _ := c.Last()
	assert.Equal(t, "ab", last.Content)
}

func TestSubscribe_EventsInOrder(t *testing.T) {
	c := NewConversation()
	var kinds []EventKind
	var deltas []string
	unsubscribe := c.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		deltas = append(deltas, ev.Delta)
	})

	s := c.ApplyUserMessage("q")
	c.ApplyDelta(s, "He")
	c.ApplyDelta(s, "y")
	c.CloseSession(s)

	assert.Equal(t, []EventKind{EventTurnAppended, EventTurnAppended, EventTurnUpdated, EventSessionClosed}, kinds)
	assert.Equal(t, []string{"", "He", "y", ""}, deltas)

	unsubscribe()
	c.ApplyUserMessage("again")
	assert.Len(t, kinds, 4, "no events after unsubscribe")
}

func TestSubscribe_ObserverSeesMutation(t *testing.T) {
	c := NewConversation()
	var seen []string
	c.Subscribe(func(ev Event) {
		if last, ok := c.Last(); ok {
			seen = append(seen, last.Content)
		}
	})
	s := c.ApplyUserMessage("q")
	c.ApplyDelta(s, "A")
	c.ApplyDelta(s, "B")
	assert.Equal(t, []string{"q", "A", "AB"}, seen)
}

func TestHistorySkipsErrors(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("one")
	c.ApplyDelta(s, "reply")
	s = c.ApplyUserMessage("two")
	c.AppendError(s, "Error: boom")

	h := c.History()
	require.Len(t, h, 3)
	assert.Equal(t, RoleUser, h[0].Role)
	assert.Equal(t, RoleAssistant, h[1].Role)
	assert.Equal(t, "two", h[2].Content)
}

func TestPruning(t *testing.T) {
	c := NewConversation()
	for i := 0; i < MaxTurns+10; i++ {
		c.ApplyUserMessage("m")
	}
	assert.Equal(t, MaxTurns, c.Len())
}

func TestConcurrentDeltasAndSnapshots(t *testing.T) {
	c := NewConversation()
	s := c.ApplyUserMessage("q")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.ApplyDelta(s, "x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			for _, turn := range c.Snapshot() {
				if !turn.IsUser() && strings.Trim(turn.Content, "x") != "" {
					t.Errorf("unexpected content %q", turn.Content)
					return
				}
			}
		}
	}()
	wg.Wait()

	last, _ := c.Last()
	assert.Equal(t, strings.Repeat("x", 500), last.Content)
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
