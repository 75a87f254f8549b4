// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/util"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatConversationList formats conversation metadata as a table.
func FormatConversationList(metas []ConversationMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	sb.WriteString(formatPadded("ID", 12) + " " + formatPadded("Updated", 17) + " " +
		formatPadded("Messages", 8) + " " + formatPadded("Models", 24) + " Title\n")
	sb.WriteString(strings.Repeat("-", 80) + "\n")

	for _, m := range metas {
		id := util.TruncateRunes(m.ID, 12)
		title := m.Title
		if m.Local {
			title += " *"
		}
		sb.WriteString(formatPadded(id, 12) + " " +
			formatPadded(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			formatPadded(strconv.Itoa(m.MessageCount), 8) + " " +
			formatPadded(util.TruncateWidth(strings.Join(m.Models, ","), 24), 24) + " " +
			util.TruncateWidth(title, 40) + "\n")
	}
	return sb.String()
}

// formatPadded pads a string to the specified display width with spaces.
func formatPadded(s string, width int) string {
	w := util.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the conversation as Markdown with role labels and
// model attribution.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	if len(conv.Models) > 0 {
		sb.WriteString("Models: " + strings.Join(conv.Models, ", ") + "\n\n")
	}
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		label := "**" + msg.Role.DisplayName() + "**"
		if msg.Role == model.RoleAssistant && msg.ModelID != "" {
			label = "**" + msg.ModelID + "**"
		}
		sb.WriteString(label + " (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON returns the conversation as pretty-printed JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	return json.MarshalIndent(conv, "", "  ")
}
