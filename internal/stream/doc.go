// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes streaming chat-completion response bodies.
//
// A Decoder turns raw body chunks into complete lines, holding back split
// UTF-8 sequences and unterminated text. ParseLine classifies each line as
// a text delta, the [DONE] sentinel, a no-op, or an ignorable malformed line.
//
// Usage:
//
//	dec := stream.NewDecoder()
//	for _, line := range dec.Decode(chunk) {
//	    switch r := stream.ParseLine(line); r.Kind {
//	    case stream.KindDelta:
//	        fmt.Print(r.Delta)
//	    case stream.KindDone:
//	        return
//	    }
//	}
package stream
