// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/store"
	"github.com/jeranaias/chatsapp/internal/ui/styles"
)

// errStoreClosed is returned when the store goes away mid-turn.
var errStoreClosed = errors.New("store closed")

// reply is one model's outcome for a turn.
type reply struct {
	Model   string
	Status  model.StreamStatus
	Content string
	Error   string
}

// waitForTurn blocks until none of ids is streaming.
func waitForTurn(ctx context.Context, st *store.Store, ids []string) error {
	changes, stop := st.Watch()
	defer stop()

	for {
		if !anyStreaming(st, ids) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return errStoreClosed
			}
		}
	}
}

func anyStreaming(st *store.Store, ids []string) bool {
	for _, id := range ids {
		if st.StreamingState(id).IsStreaming {
			return true
		}
	}
	return false
}

// collectReplies returns each model's answer to the user message exchangeID.
func collectReplies(st *store.Store, conversationID, exchangeID string, ids []string) []reply {
	conv, _ := st.Conversation(conversationID)
	out := make([]reply, 0, len(ids))
	for _, id := range ids {
		state := st.StreamingState(id)
		r := reply{Model: id, Status: state.Status, Error: state.Error}
		if conv != nil {
			r.Content = answerTo(conv, exchangeID, id)
		}
		out = append(out, r)
	}
	return out
}

// answerTo finds modelID's last assistant message after the user message
// exchangeID.
func answerTo(conv *model.Conversation, exchangeID, modelID string) string {
	after := false
	answer := ""
	for _, msg := range conv.Messages {
		if msg.ID == exchangeID {
			after = true
			continue
		}
		if after && msg.Role == model.RoleAssistant && msg.ModelID == modelID {
			answer = msg.Content
		}
	}
	return answer
}

// =============================================================================
// OUTPUT
// =============================================================================

// replyPrinter writes replies, as rendered markdown on a terminal.
type replyPrinter struct {
	w     io.Writer
	theme *styles.Theme
	md    *glamour.TermRenderer
}

func newReplyPrinter(w io.Writer, theme *styles.Theme, markdown bool) *replyPrinter {
	p := &replyPrinter{w: w, theme: theme}
	if markdown && isTerminal(w) {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(theme.GlamourStyle()),
			glamour.WithWordWrap(terminalWidth(w)-4),
		)
		if err == nil {
			p.md = md
		}
	}
	return p
}

func (p *replyPrinter) print(replies []reply) {
	for i, r := range replies {
		if len(replies) > 1 {
			if i > 0 {
				fmt.Fprintln(p.w)
			}
			fmt.Fprintln(p.w, p.theme.ColumnTitle.Render("== "+r.Model+" =="))
		}
		switch {
		case r.Status == model.StatusError:
			fmt.Fprintln(p.w, p.theme.Error.Render("Error: "+r.Error))
		case r.Content != "":
			fmt.Fprintln(p.w, p.render(r.Content))
		case r.Status == model.StatusDisconnected:
			fmt.Fprintln(p.w, p.theme.Notice.Render("(stopped)"))
		default:
			fmt.Fprintln(p.w, p.theme.Notice.Render("(no reply)"))
		}
	}
}

func (p *replyPrinter) render(content string) string {
	if p.md == nil {
		return content
	}
	out, err := p.md.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// failed reports whether every reply is an error.
func failed(replies []reply) bool {
	for _, r := range replies {
		if r.Status != model.StatusError {
			return false
		}
	}
	return len(replies) > 0
}

// plainTheme returns the theme used for line-oriented output to w.
func plainTheme(w io.Writer, name string) *styles.Theme {
	if !isTerminal(w) {
		name = styles.ThemeASCII
	}
	theme := styles.NewTheme(name)
	theme.Apply()
	return theme
}

// banner renders a one-line heading.
func banner(theme *styles.Theme, title, detail string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		theme.HeaderTitle.Render(title), "  ", theme.HeaderDetail.Render(detail))
}
