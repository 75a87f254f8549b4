// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles of the chatsapp TUI.

# Colors (colors.go)

All colors are Lip Gloss AdaptiveColors and follow the terminal background:

  - Purple - assistant messages, model names
  - Cyan - user messages, header
  - Emerald - completed streams
  - Amber - connecting and disconnected streams
  - Rose - errors

# Theme (theme.go)

NewTheme resolves a theme name (auto, dark, light, ascii) against the
terminal's capabilities:

	theme := styles.NewTheme("auto")
	label := theme.Status(model.StatusGenerating).Render("Generating...")

The ascii theme disables color entirely.
*/
package styles
