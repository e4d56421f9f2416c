// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MaxTurns is the maximum number of turns kept in the transcript.
// When exceeded, the oldest turns are pruned to prevent unbounded memory growth.
const MaxTurns = 1000

// =============================================================================
// SESSION
// =============================================================================

// Session identifies one send. Deltas and errors tagged with a session that
// is no longer current are rejected.
type Session struct {
	ID  string
	Gen uint64
}

// IsZero reports whether s is the zero Session, which is never current.
func (s Session) IsZero() bool {
	return s.Gen == 0
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind says what changed in the transcript.
type EventKind int

const (
	// EventTurnAppended: a new turn was added at Index.
	EventTurnAppended EventKind = iota
	// EventTurnUpdated: the turn at Index grew by Delta.
	EventTurnUpdated
	// EventSessionClosed: the session stopped accepting deltas.
	EventSessionClosed
	// EventCleared: all turns were removed.
	EventCleared
)

// Event describes one transcript mutation.
type Event struct {
	Kind      EventKind
	Index     int
	Turn      Turn
	Delta     string
	SessionID string
}

// Observer receives transcript events. Observers run synchronously after
// the mutation is visible in Snapshot, one event at a time in mutation
// order. An observer may read the conversation but must not mutate it.
type Observer func(Event)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered transcript and the accumulator that folds
// streamed deltas into it. It is safe for concurrent use.
type Conversation struct {
	// notifyMu serializes mutation+notification so observers see events in
	// the same order the mutations happened.
	notifyMu sync.Mutex

	mu      sync.RWMutex
	entries []*entry
	gen     uint64
	current Session
	open    bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

// NewConversation creates an empty transcript.
func NewConversation() *Conversation {
	return &Conversation{
		entries:   make([]*entry, 0),
		observers: make(map[int]Observer),
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscribe registers an observer and returns a function that removes it.
func (c *Conversation) Subscribe(fn Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Conversation) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.obsMu.Lock()
	obs := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.obsMu.Unlock()

	for _, ev := range events {
		for _, fn := range obs {
			fn(ev)
		}
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// ApplyUserMessage appends a user turn and starts a new session. Any open
// assistant turn is closed: later deltas for the previous session are
// rejected.
func (c *Conversation) ApplyUserMessage(text string) Session {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.gen++
	s := Session{ID: uuid.NewString(), Gen: c.gen}
	c.current = s
	c.open = true

	e := newEntry(RoleUser, text, s.ID)
	idx := c.appendLocked(e)
	ev := Event{Kind: EventTurnAppended, Index: idx, Turn: e.turn(), SessionID: s.ID}
	c.mu.Unlock()

	c.notify(ev)
	return s
}

// ApplyDelta folds a text fragment into the transcript. If the last turn is
// this session's assistant turn it grows; otherwise a new assistant turn
// holding the delta is appended. It returns false, leaving the transcript
// untouched, when the session is stale or closed.
func (c *Conversation) ApplyDelta(s Session, delta string) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !c.acceptsLocked(s) {
		c.mu.Unlock()
		return false
	}
	if delta == "" {
		c.mu.Unlock()
		return true
	}

	var ev Event
	if last := c.lastLocked(); last != nil && last.role == RoleAssistant && !last.isError && last.sessionID == s.ID {
		last.content.WriteString(delta)
		ev = Event{Kind: EventTurnUpdated, Index: len(c.entries) - 1, Turn: last.turn(), Delta: delta, SessionID: s.ID}
	} else {
		e := newEntry(RoleAssistant, delta, s.ID)
		idx := c.appendLocked(e)
		ev = Event{Kind: EventTurnAppended, Index: idx, Turn: e.turn(), Delta: delta, SessionID: s.ID}
	}
	c.mu.Unlock()

	c.notify(ev)
	return true
}

// AppendError appends a synthetic assistant turn reporting a failure and
// closes the session. Stale sessions are rejected.
func (c *Conversation) AppendError(s Session, message string) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if s.IsZero() || s.Gen != c.gen {
		c.mu.Unlock()
		return false
	}
	e := newEntry(RoleAssistant, message, s.ID)
	e.isError = true
	idx := c.appendLocked(e)
	c.open = false
	evs := []Event{
		{Kind: EventTurnAppended, Index: idx, Turn: e.turn(), SessionID: s.ID},
		{Kind: EventSessionClosed, Index: idx, SessionID: s.ID},
	}
	c.mu.Unlock()

	c.notify(evs...)
	return true
}

// CloseSession stops the session from accepting further deltas. Closing a
// stale or already closed session is a no-op.
func (c *Conversation) CloseSession(s Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !c.acceptsLocked(s) {
		c.mu.Unlock()
		return
	}
	c.open = false
	ev := Event{Kind: EventSessionClosed, Index: len(c.entries) - 1, SessionID: s.ID}
	c.mu.Unlock()

	c.notify(ev)
}

// Clear removes every turn and invalidates the current session.
func (c *Conversation) Clear() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.entries = c.entries[:0]
	c.gen++
	c.current = Session{}
	c.open = false
	c.mu.Unlock()

	c.notify(Event{Kind: EventCleared, Index: -1})
}

func (c *Conversation) acceptsLocked(s Session) bool {
	return c.open && !s.IsZero() && s.Gen == c.gen
}

func (c *Conversation) lastLocked() *entry {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

// appendLocked adds e, pruning the oldest turns past MaxTurns, and returns
// the index e ended up at.
func (c *Conversation) appendLocked(e *entry) int {
	c.entries = append(c.entries, e)
	if over := len(c.entries) - MaxTurns; over > 0 {
		kept := make([]*entry, MaxTurns)
		copy(kept, c.entries[over:])
		c.entries = kept
	}
	return len(c.entries) - 1
}

// =============================================================================
// QUERIES
// =============================================================================

// Snapshot returns a copy of all turns, consistent with a single point in
// the mutation order.
func (c *Conversation) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.turn()
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.lastLocked(); e != nil {
		return e.turn(), true
	}
	return Turn{}, false
}

// Current returns the session that currently accepts deltas, if any.
func (c *Conversation) Current() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.open
}

// IsCurrent reports whether s is the newest session, open or not.
func (c *Conversation) IsCurrent(s Session) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !s.IsZero() && s.Gen == c.gen
}

// History returns the transcript as request messages, oldest first. Error
// turns are left out since the server never produced them.
func (c *Conversation) History() []HistoryMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]HistoryMessage, 0, len(c.entries))
	for _, e := range c.entries {
		if e.isError || strings.TrimSpace(e.content.String()) == "" {
			continue
		}
		out = append(out, HistoryMessage{Role: e.role, Content: e.content.String()})
	}
	return out
}

// HistoryMessage is a role/content pair ready to send back to the server.
type HistoryMessage struct {
	Role    Role
	Content string
}
