// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatsapp packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis (conversation titles, previews)
//   - TruncateWidth: display-width truncation for terminal columns
//   - StringWidth: display width, wide characters count as 2 columns
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateRunes(firstMessage, 50)
//	cell := util.TruncateWidth(content, columnWidth)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
