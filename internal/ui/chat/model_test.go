// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatsapp/internal/cable"
	"github.com/jeranaias/chatsapp/internal/gateway"
	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/session"
	"github.com/jeranaias/chatsapp/internal/store"
	"github.com/jeranaias/chatsapp/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeGateway struct{ err error }

func (g *fakeGateway) InitializeStream(ctx context.Context, conversationID, exchangeID string) (*gateway.StreamInit, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.StreamInit{}, nil
}

type fakeChannel struct {
	subscribed []string
	handlers   map[string]cable.Handler
}

func (c *fakeChannel) Connect(ctx context.Context) error { return nil }
func (c *fakeChannel) IsConnected() bool                 { return true }
func (c *fakeChannel) Subscribe(conversationID, exchangeID string, h cable.Handler) (string, error) {
	key := model.SubscriptionKey(conversationID, exchangeID)
	if c.handlers == nil {
		c.handlers = make(map[string]cable.Handler)
	}
	c.handlers[key] = h
	c.subscribed = append(c.subscribed, key)
	return key, nil
}
func (c *fakeChannel) Unsubscribe(key string)        {}
func (c *fakeChannel) UnsubscribeAll()               {}
func (c *fakeChannel) OnConnectionLost(func(error)) {}

func newTestModel(t *testing.T) (Model, *store.Store, *fakeChannel) {
	t.Helper()
	st := store.New(nil)
	ch := &fakeChannel{}
	coord := session.New(st, &fakeGateway{}, ch)
	t.Cleanup(coord.Close)

	m, err := New(context.Background(), Options{
		Store:       st,
		Coordinator: coord,
		Theme:       styles.NewTheme(styles.ThemeASCII),
	})
	require.NoError(t, err)
	t.Cleanup(m.stopWatch)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model), st, ch
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	updated, cmd := updated.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

// =============================================================================
// TESTS
// =============================================================================

func TestModel_ViewBeforeResize(t *testing.T) {
	st := store.New(nil)
	coord := session.New(st, &fakeGateway{}, &fakeChannel{})
	defer coord.Close()
	m, err := New(context.Background(), Options{Store: st, Coordinator: coord})
	require.NoError(t, err)
	defer m.stopWatch()

	assert.Equal(t, "Loading...", m.View())
}

func TestNew_OpensConversation(t *testing.T) {
	st := store.New(nil)
	coord := session.New(st, &fakeGateway{}, &fakeChannel{})
	t.Cleanup(coord.Close)

	first, err := st.CreateConversation(context.Background(), []string{"gpt-4o"})
	require.NoError(t, err)
	_, err = st.CreateConversation(context.Background(), []string{"gpt-4o"})
	require.NoError(t, err)

	m, err := New(context.Background(), Options{Store: st, Coordinator: coord, ConversationID: first.ID})
	require.NoError(t, err)
	t.Cleanup(m.stopWatch)
	assert.Equal(t, first.ID, st.ActiveConversationID())

	_, err = New(context.Background(), Options{Store: st, Coordinator: coord, ConversationID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConversationNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestModel_ViewShowsSelectedModels(t *testing.T) {
	m, _, _ := newTestModel(t)

	view := m.View()
	assert.Contains(t, view, "No conversation")
	assert.Contains(t, view, "gpt-4o")
	assert.Contains(t, view, "claude-3.5-sonnet")
}

func TestModel_FirstMessageCreatesConversationAndStreams(t *testing.T) {
	m, st, ch := newTestModel(t)

	m, cmd := typeAndEnter(t, m, "hello")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	msg := cmd()
	created, ok := msg.(conversationCreatedMsg)
	require.True(t, ok)
	require.NoError(t, created.Err)
	assert.Equal(t, "hello", created.Pending)
	assert.Equal(t, store.LocalFallback, created.Result.Outcome)

	updated, cmd := m.Update(created)
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.Contains(t, m.notice, "working locally")

	sent, ok := cmd().(turnSentMsg)
	require.True(t, ok)
	require.NoError(t, sent.Err)

	updated, _ = m.Update(sent)
	m = updated.(Model)
	assert.False(t, m.busy)
	require.Len(t, ch.subscribed, 1)

	conv := st.ActiveConversation()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, model.StatusConnecting, st.StreamingState("gpt-4o").Status)
	assert.Contains(t, m.View(), "hello")
}

func TestModel_StreamedTokensRender(t *testing.T) {
	m, st, ch := newTestModel(t)

	m, cmd := typeAndEnter(t, m, "hi")
	updated, cmd := m.Update(cmd())
	updated, _ = updated.(Model).Update(cmd())
	m = updated.(Model)

	require.Len(t, ch.subscribed, 1)
	h := ch.handlers[ch.subscribed[0]]
	h(cable.Event{Kind: cable.EventToken, Content: "partial answer"})

	m.refresh()
	assert.Contains(t, m.View(), "partial answer")
	assert.Equal(t, model.StatusGenerating, st.StreamingState("gpt-4o").Status)
}

func TestModel_InitFailureShowsError(t *testing.T) {
	st := store.New(nil)
	coord := session.New(st, &fakeGateway{err: errors.New("boom")}, &fakeChannel{})
	t.Cleanup(coord.Close)
	m, err := New(context.Background(), Options{Store: st, Coordinator: coord})
	require.NoError(t, err)
	t.Cleanup(m.stopWatch)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	m, cmd := typeAndEnter(t, m, "hi")
	updated, cmd = m.Update(cmd())
	updated, _ = updated.(Model).Update(cmd())
	m = updated.(Model)

	assert.True(t, m.noticeError)
	assert.Equal(t, model.StatusError, st.StreamingState("gpt-4o").Status)
	assert.Contains(t, m.View(), "Error: boom")
}

func TestModel_ModelsCommand(t *testing.T) {
	m, st, _ := newTestModel(t)

	m, _ = typeAndEnter(t, m, "/models gemini-pro")
	assert.False(t, m.noticeError)
	assert.Equal(t, []string{"gemini-pro"}, st.SelectedModels())

	m, _ = typeAndEnter(t, m, "/models nope")
	assert.True(t, m.noticeError)
	assert.Equal(t, []string{"gemini-pro"}, st.SelectedModels())

	m, _ = typeAndEnter(t, m, "/models")
	assert.Contains(t, m.notice, "Selected: gemini-pro")
}

func TestModel_UnknownCommand(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = typeAndEnter(t, m, "/bogus")
	assert.True(t, m.noticeError)
	assert.Contains(t, m.notice, "Unknown command /bogus")
}

func TestModel_QuitStopsStreaming(t *testing.T) {
	m, st, _ := newTestModel(t)

	m, cmd := typeAndEnter(t, m, "hi")
	updated, cmd := m.Update(cmd())
	updated, _ = updated.(Model).Update(cmd())
	m = updated.(Model)
	require.True(t, st.StreamingState("gpt-4o").IsStreaming)

	_, cmd = typeAndEnter(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, st.StreamingState("gpt-4o").IsStreaming)
	assert.Equal(t, model.StatusDisconnected, st.StreamingState("gpt-4o").Status)
}

func TestSplitModels(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitModels("a, b c"))
	assert.Empty(t, splitModels(" , "))
}
