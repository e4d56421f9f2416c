// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// CHUNK DECODER
// =============================================================================

// Decoder turns arbitrary byte chunks from a response body into complete
// text lines. A multi-byte character split across two chunks is held back
// until its remaining bytes arrive, and text after the last newline is kept
// as residual for the next chunk.
//
// A Decoder is owned by a single read loop and is not safe for concurrent use.
type Decoder struct {
	// text holds decoded characters that have not yet been terminated by a
	// newline.
	text bytes.Buffer

	// utf8 buffers incomplete byte sequences between writes.
	utf8 *transform.Writer
}

// NewDecoder creates a decoder with an empty residual.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.utf8 = transform.NewWriter(&d.text, unicode.UTF8.NewDecoder())
	return d
}

// Decode feeds one chunk and returns the lines it completed, in order,
// without their terminating newline. Invalid byte sequences are replaced
// with U+FFFD. An empty chunk returns nil and leaves the residual untouched.
func (d *Decoder) Decode(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	// transform.Writer only fails when the underlying writer fails, and a
	// bytes.Buffer never does.
	_, _ = d.utf8.Write(chunk)

	buf := d.text.Bytes()
	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		return nil
	}

	lines := strings.Split(string(buf[:last]), "\n")
	rest := string(buf[last+1:])
	d.text.Reset()
	d.text.WriteString(rest)
	return lines
}

// Residual returns the decoded text waiting for a newline.
func (d *Decoder) Residual() string {
	return d.text.String()
}

// Discard ends the stream. The unterminated residual is dropped and
// returned so the caller can log it; it is never parsed.
func (d *Decoder) Discard() string {
	// Close flushes any incomplete byte sequence as U+FFFD into text.
	_ = d.utf8.Close()
	rest := d.text.String()
	d.text.Reset()
	d.utf8 = transform.NewWriter(&d.text, unicode.UTF8.NewDecoder())
	return rest
}
