// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// Kind classifies a parsed line.
type Kind int

const (
	// KindNone is a blank line, an SSE comment or field, or a well-formed
	// envelope that carries no text (role announcements, finish reasons).
	KindNone Kind = iota

	// KindDone is the [DONE] sentinel.
	KindDone

	// KindDelta carries a text fragment.
	KindDelta

	// KindIgnored is a line that neither stage could parse. Err says why.
	KindIgnored
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDone:
		return "done"
	case KindDelta:
		return "delta"
	case KindIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Result is the outcome of parsing one line.
type Result struct {
	Kind  Kind
	Delta string
	Err   error
}

// Sentinel payload that terminates an OpenAI-style stream.
const doneSentinel = "[DONE]"

const dataPrefix = "data:"

// ErrNoContent is returned in Result.Err when a line is neither valid JSON
// nor contains a content field the fallback can recover.
var ErrNoContent = errors.New("no content field")

// ErrServerReported wraps an error the server sent inside the stream.
var ErrServerReported = errors.New("server reported error in stream")

// =============================================================================
// WIRE ENVELOPES
// =============================================================================

// chunkEnvelope covers the framings seen from OpenAI-compatible servers:
// chat deltas, non-streaming chat messages, legacy completions text and
// Ollama's native NDJSON.
type chunkEnvelope struct {
	Choices []struct {
		Delta *struct {
			Content *string `json:"content"`
		} `json:"delta"`
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`

	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`

	Error json.RawMessage `json:"error"`
}

// =============================================================================
// LINE PARSER
// =============================================================================

// contentPattern finds the first "content":"..." pair in a raw line,
// honouring backslash escapes inside the string.
var contentPattern = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ParseLine classifies one complete line of a response body.
//
// The strict stage strips an optional "data:" prefix, recognises the [DONE]
// sentinel and decodes the JSON envelope. When the payload is not valid JSON,
// or is JSON in a shape none of the envelopes describe (llama.cpp's native
// {"content":...,"stop":false}), the fallback stage searches it for a
// content field. Parsing never fails the stream: unrecoverable lines come
// back as KindIgnored.
func ParseLine(line string) Result {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Result{Kind: KindNone}
	}

	payload, isData := cutDataPrefix(trimmed)
	if !isData && isSSEField(trimmed) {
		return Result{Kind: KindNone}
	}
	if payload == "" {
		return Result{Kind: KindNone}
	}
	if payload == doneSentinel {
		return Result{Kind: KindDone}
	}

	var env chunkEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fallback(trimmed, err)
	}
	if env.recognised() {
		return fromEnvelope(&env)
	}

	// Valid JSON without a known envelope: text is recovered if present,
	// otherwise the line is a no-op.
	res := fallback(payload, nil)
	if res.Kind == KindIgnored && errors.Is(res.Err, ErrNoContent) {
		return Result{Kind: KindNone}
	}
	return res
}

func cutDataPrefix(s string) (string, bool) {
	rest, ok := strings.CutPrefix(s, dataPrefix)
	if !ok {
		return s, false
	}
	return strings.TrimSpace(rest), true
}

// isSSEField reports whether a line is an SSE comment or a non-data field.
func isSSEField(s string) bool {
	if strings.HasPrefix(s, ":") {
		return true
	}
	for _, field := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(s, field) {
			return true
		}
	}
	return false
}

// recognised reports whether the payload matched one of the envelope shapes.
func (env *chunkEnvelope) recognised() bool {
	return env.hasError() || len(env.Choices) > 0 || env.Message != nil || env.Done
}

func (env *chunkEnvelope) hasError() bool {
	return len(env.Error) > 0 && string(env.Error) != "null"
}

func fromEnvelope(env *chunkEnvelope) Result {
	if env.hasError() {
		return Result{Kind: KindIgnored, Err: fmt.Errorf("%w: %s", ErrServerReported, errorText(env.Error))}
	}

	if len(env.Choices) > 0 {
		c := env.Choices[0]
		switch {
		case c.Delta != nil && c.Delta.Content != nil:
			return deltaResult(*c.Delta.Content)
		case c.Message != nil && c.Message.Content != nil:
			return deltaResult(*c.Message.Content)
		case c.Text != nil:
			return deltaResult(*c.Text)
		}
		return Result{Kind: KindNone}
	}

	if env.Message != nil && env.Message.Content != nil && *env.Message.Content != "" {
		return Result{Kind: KindDelta, Delta: *env.Message.Content}
	}
	if env.Done {
		return Result{Kind: KindDone}
	}
	return Result{Kind: KindNone}
}

func deltaResult(s string) Result {
	if s == "" {
		return Result{Kind: KindNone}
	}
	return Result{Kind: KindDelta, Delta: s}
}

// errorText extracts a readable message from an "error" member, which
// servers send either as a string or as an object with a message.
func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// fallback recovers a content field from a line the strict stage rejected,
// for servers whose framing differs from the known envelopes.
func fallback(line string, cause error) Result {
	m := contentPattern.FindStringSubmatch(line)
	if m == nil {
		if cause == nil {
			return Result{Kind: KindIgnored, Err: ErrNoContent}
		}
		return Result{Kind: KindIgnored, Err: fmt.Errorf("%w: %v", ErrNoContent, cause)}
	}

	var text string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &text); err != nil {
		return Result{Kind: KindIgnored, Err: fmt.Errorf("bad escape in content: %w", err)}
	}
	return deltaResult(text)
}
