// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Width-aware helpers keep wide (CJK, emoji) characters intact and
// measure them by the terminal columns they occupy.

// TruncateWidth shortens s to at most maxWidth terminal columns, ending in
// "…" when anything was cut.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

// TruncateMiddle keeps the start and end of s and elides the middle, which
// suits URLs whose host and path both matter.
func TruncateMiddle(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth < 5 {
		return TruncateWidth(s, maxWidth)
	}

	keep := maxWidth - 1
	head := (keep + 1) / 2
	tail := keep - head

	left := runewidth.Truncate(s, head, "")
	rest := []rune(s)
	var right []rune
	w := 0
	for i := len(rest) - 1; i >= 0; i-- {
		rw := runewidth.RuneWidth(rest[i])
		if w+rw > tail {
			break
		}
		w += rw
		right = append([]rune{rest[i]}, right...)
	}
	return left + "…" + string(right)
}

// StringWidth returns the display width of a string.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads s with spaces to width columns. Wider strings are returned
// unchanged.
func PadRight(s string, width int) string {
	if gap := width - runewidth.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// FirstLine returns s up to its first newline, trimmed.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
