// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine drives a streaming chat send from request to final turn.
//
// A send appends the user turn, opens the stream, and feeds every body
// chunk through the stream decoder and parser into the conversation. It
// ends on end of body, a [DONE] line, a read error, the read timeout, a
// Cancel, or a newer send.
//
// # State Machine
//
//	Idle -> Sending -> Streaming -> Idle
//	Idle -> Sending -> Error -> Idle
//
// # Errors
//
// Transport and HTTP status failures are never returned to the caller.
// They become one assistant turn reading "Error: ..." and the input stays
// usable. Lines that cannot be parsed are skipped and counted.
//
// # Usage
//
//	eng := engine.New(conv, openai.NewClient(), engine.Options{
//	    ReadTimeout: 60 * time.Second,
//	    Scroll:      scrollCtl,
//	})
//	res := eng.Send(ctx, "Hello", endpoint)
package engine
