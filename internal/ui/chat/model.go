// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/session"
	"github.com/jeranaias/chatsapp/internal/store"
	"github.com/jeranaias/chatsapp/internal/ui/styles"
)

// Options configures the chat view.
type Options struct {
	Store       *store.Store
	Coordinator *session.Coordinator
	Theme       *styles.Theme

	// ConversationID is the conversation to open; empty starts a new one
	// with the first message.
	ConversationID string
	Markdown       bool
	ShowTimestamps bool
}

// Model is the chat view.
type Model struct {
	ctx    context.Context
	store  *store.Store
	coord  *session.Coordinator
	theme  *styles.Theme
	render *renderer

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	changes     <-chan struct{}
	stopWatch   func()
	width       int
	height      int
	ready       bool
	busy        bool
	notice      string
	noticeError bool
}

// New creates the chat view. ctx bounds every network call it starts. It
// fails when opts.ConversationID names an unknown conversation.
func New(ctx context.Context, opts Options) (Model, error) {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ThemeAuto)
	}

	input := textinput.New()
	input.Placeholder = "Send a message, or /help"
	input.Prompt = theme.InputPrompt.Render("> ")
	input.CharLimit = 8000
	input.Focus()

	spin := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Status(model.StatusGenerating)))

	if opts.ConversationID != "" {
		if err := opts.Store.SetActiveConversation(opts.ConversationID); err != nil {
			return Model{}, fmt.Errorf("opening conversation %s: %w", opts.ConversationID, err)
		}
	}

	changes, stop := opts.Store.Watch()
	return Model{
		ctx:       ctx,
		store:     opts.Store,
		coord:     opts.Coordinator,
		theme:     theme,
		render:    newRenderer(theme, opts.Markdown, opts.ShowTimestamps),
		input:     input,
		spinner:   spin,
		viewport:  viewport.New(80, 20),
		changes:   changes,
		stopWatch: stop,
	}, nil
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink, the spinner and the store watch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case watchClosedMsg:
		return m, nil

	case conversationCreatedMsg:
		return m.handleConversationCreated(msg)

	case turnSentMsg:
		m.busy = false
		if msg.Err != nil {
			m.setError(msg.Err.Error())
		} else if msg.Result.Degraded() {
			m.setNotice("Message saved locally: " + msg.Result.Reason.Error())
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.viewport.Width = msg.Width
	m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 3)
	m.input.Width = max(msg.Width-4, 10)
	m.render.setWidth(msg.Width)
	m.ready = true
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.coord.StopAll()
		m.stopWatch()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.coord.Streaming() {
			m.coord.StopAll()
			m.setNotice("Stopped.")
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.send(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send starts a turn, creating the conversation first when none is active.
func (m Model) send(text string) (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNotice("Still sending the previous message.")
		return m, nil
	}
	m.busy = true
	m.clearNotice()

	convID := m.store.ActiveConversationID()
	if convID == "" {
		return m, m.createConversation(text)
	}
	return m, m.sendTurn(convID, text)
}

func (m Model) handleConversationCreated(msg conversationCreatedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.busy = false
		m.setError(msg.Err.Error())
		return m, nil
	}
	if msg.Result.Degraded() {
		m.setNotice("Backend unreachable, working locally: " + msg.Result.Reason.Error())
	}
	m.refresh()
	if msg.Pending == "" {
		m.busy = false
		return m, nil
	}
	return m, m.sendTurn(msg.Result.ID, msg.Pending)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return watchClosedMsg{}
		}
		return storeChangedMsg{}
	}
}

func (m Model) createConversation(pending string) tea.Cmd {
	ctx, coord, models := m.ctx, m.coord, m.store.SelectedModels()
	return func() tea.Msg {
		res, err := coord.CreateConversation(ctx, models)
		return conversationCreatedMsg{Result: res, Err: err, Pending: pending}
	}
}

func (m Model) sendTurn(convID, text string) tea.Cmd {
	ctx, coord := m.ctx, m.coord
	return func() tea.Msg {
		res, err := coord.SendTurn(ctx, convID, text, nil)
		return turnSentMsg{Result: res, Err: err}
	}
}

// =============================================================================
// NOTICES
// =============================================================================

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeError = false
}

func (m *Model) setError(text string) {
	m.notice = text
	m.noticeError = true
}

func (m *Model) clearNotice() {
	m.notice = ""
	m.noticeError = false
}
