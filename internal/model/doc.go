// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the chat transcript and its turns.
//
// A Conversation is the single owner of the ordered turn list. User input
// opens a Session; streamed text for that session is folded into one
// assistant turn by ApplyDelta. A newer session makes the older one stale,
// so late deltas from a superseded stream are dropped instead of landing in
// the wrong turn.
//
// # Key Types
//
//   - Conversation: transcript, accumulator and observer registry
//   - Turn: immutable copy of one transcript entry
//   - Session: identity of one send, compared by generation
//   - Event: what a mutation changed, delivered to Observers
//
// # Usage
//
//	conv := model.NewConversation()
//	unsubscribe := conv.Subscribe(func(ev model.Event) { redraw(conv.Snapshot()) })
//	defer unsubscribe()
//
//	s := conv.ApplyUserMessage("Hi")
//	conv.ApplyDelta(s, "Hel")
//	conv.ApplyDelta(s, "lo")
//	conv.CloseSession(s)
package model
