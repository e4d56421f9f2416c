// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles of the chat screen.

All colors are lipgloss AdaptiveColor values, so they follow the terminal
background. NewTheme("auto") detects the background with termenv; "dark"
and "light" force it, which also picks the matching glamour style for
assistant markdown.

# Status Markers

Status output pairs each color with an ASCII marker so probe results stay
readable in monochrome terminals:

	[OK] success   [X] error   [!] warning   [i] info   [-] skipped
*/
package styles
