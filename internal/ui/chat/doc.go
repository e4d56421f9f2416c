// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the full-screen Bubble Tea surface for a conversation.
//
// The model never owns transcript state. It subscribes to a
// model.Conversation, turns every event into a redraw request and renders
// Snapshot() on the next allowed frame. Redraws are capped at UIConfig.MaxFPS
// so a fast stream does not repaint the terminal thousands of times a second.
//
// Scrolling follows a scroll.Controller: while following, new content pins
// the view to the bottom; once the user scrolls away the view is held until
// they press End or send another message.
//
// # Key Bindings
//
//   - Enter: send the message or run the slash command
//   - Esc: cancel the streaming reply
//   - PgUp/PgDn, Ctrl+Up/Ctrl+Down: scroll the transcript
//   - End: scroll back to the bottom and resume following
//   - Ctrl+L: clear the conversation
//   - Ctrl+C: quit
package chat
