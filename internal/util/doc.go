// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the render surfaces and
// the config layer.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - TruncateWidth, TruncateMiddle: column-aware truncation for status lines
//   - StringWidth, PadRight: terminal width measurement
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	label := util.TruncateMiddle(endpointURL, 40)
package util
