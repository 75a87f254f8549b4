// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/ui/styles"
	"github.com/jeranaias/chatsapp/internal/util"
)

const (
	headerHeight = 2
	footerHeight = 2
	minColumn    = 20
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')
	b.WriteString(m.statusView())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.noticeView())
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) headerView() string {
	title := "No conversation"
	if conv := m.store.ActiveConversation(); conv != nil {
		title = conv.Title
		if conv.Local {
			title += " (local)"
		}
	}
	line := m.theme.HeaderTitle.Render("chatsapp") + "  " + m.theme.HeaderDetail.Render(title)
	return m.theme.Header.Width(m.width).Render(util.TruncateWidth(line, max(m.width, 1)))
}

// statusView shows every selected model's stream status.
func (m Model) statusView() string {
	states := m.store.StreamingStates()
	parts := make([]string, 0, len(states))
	for _, id := range m.store.SelectedModels() {
		st, ok := states[id]
		if !ok {
			st = model.NewStreamingState()
		}
		label := st.Status.Label()
		if st.IsStreaming {
			label = m.spinner.View() + " " + label
		}
		parts = append(parts, m.theme.ColumnTitle.Render(id)+" "+m.theme.Status(st.Status).Render(label))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "   "))
}

func (m Model) noticeView() string {
	if m.notice == "" {
		return ""
	}
	style := m.theme.Notice
	if m.noticeError {
		style = m.theme.Error
	}
	return style.Render(util.TruncateWidth(m.notice, max(m.width, 1)))
}

// refresh re-renders the transcript, following the tail when the view was
// already at the bottom.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom()
	conv := m.store.ActiveConversation()
	m.viewport.SetContent(m.render.transcript(conv, m.columns(conv), m.store.StreamingStates()))
	if follow {
		m.viewport.GotoBottom()
	}
}

// columns returns the models shown side by side: the conversation's models
// followed by any other selected model.
func (m Model) columns(conv *model.Conversation) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	if conv != nil {
		add(conv.Models)
	}
	add(m.store.SelectedModels())
	return out
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderer turns conversations into text.
type renderer struct {
	theme    *styles.Theme
	markdown bool
	showTime bool
	width    int

	md      *glamour.TermRenderer
	mdWidth int
}

func newRenderer(theme *styles.Theme, markdown, showTime bool) *renderer {
	return &renderer{theme: theme, markdown: markdown, showTime: showTime, width: 80}
}

func (r *renderer) setWidth(width int) {
	if width > 0 {
		r.width = width
	}
}

// transcript renders conv with one column per model.
func (r *renderer) transcript(conv *model.Conversation, models []string, states map[string]model.StreamingState) string {
	if conv == nil {
		return r.theme.Notice.Render("Type a message to start a conversation with " + strings.Join(models, ", ") + ".")
	}
	if len(models) == 0 {
		models = []string{""}
	}

	n := len(models)
	colWidth := r.width/n - 4
	if n > 1 && colWidth < minColumn {
		// Too narrow for side by side; stack the columns.
		blocks := make([]string, n)
		for i, id := range models {
			blocks[i] = r.column(conv, id, states[id], r.width-4)
		}
		return strings.Join(blocks, "\n")
	}

	cols := make([]string, n)
	for i, id := range models {
		cols[i] = r.theme.Column.Width(colWidth + 2).Render(r.column(conv, id, states[id], colWidth))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// column renders modelID's view of the transcript and its live buffer.
func (r *renderer) column(conv *model.Conversation, modelID string, st model.StreamingState, width int) string {
	var b strings.Builder
	if modelID != "" {
		b.WriteString(r.theme.ColumnTitle.Render(modelID))
		b.WriteString("\n\n")
	}

	for _, msg := range conv.MessagesFor(modelID) {
		b.WriteString(r.label(msg))
		b.WriteByte('\n')
		b.WriteString(r.body(msg, width))
		b.WriteString("\n\n")
	}

	// A completed buffer duplicates the materialized message until cleared.
	if st.CurrentMessage != "" && st.Status != model.StatusComplete {
		b.WriteString(r.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
		b.WriteByte('\n')
		text := st.CurrentMessage
		if st.IsStreaming {
			text += " ▌"
		}
		b.WriteString(r.theme.Streaming.Width(width).Render(text))
		b.WriteString("\n\n")
	}
	if st.Status == model.StatusError && st.Error != "" {
		b.WriteString(r.theme.Error.Width(width).Render("Error: " + st.Error))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *renderer) label(msg *model.Message) string {
	var label string
	if msg.Role == model.RoleUser {
		label = r.theme.UserLabel.Render(msg.Role.DisplayName())
	} else {
		name := msg.ModelID
		if name == "" {
			name = msg.Role.DisplayName()
		}
		label = r.theme.AssistantLabel.Render(name)
	}
	if r.showTime && !msg.Timestamp.IsZero() {
		label += " " + r.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	}
	return label
}

func (r *renderer) body(msg *model.Message, width int) string {
	if r.markdown && msg.Role == model.RoleAssistant {
		if out, ok := r.renderMarkdown(msg.Content, width); ok {
			return out
		}
	}
	return r.theme.Body.Width(width).Render(msg.Content)
}

// renderMarkdown renders content with glamour, rebuilding the renderer when
// the column width changes.
func (r *renderer) renderMarkdown(content string, width int) (string, bool) {
	if r.md == nil || r.mdWidth != width {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.theme.GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", false
		}
		r.md, r.mdWidth = md, width
	}
	out, err := r.md.Render(content)
	if err != nil {
		return "", false
	}
	return strings.Trim(out, "\n"), true
}
