// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatsapp/internal/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func testConversation(id string, updated time.Time) *model.Conversation {
	conv := model.NewConversation(id, model.DefaultTitle, []string{"gpt-4o", "claude-3.5-sonnet"}, updated.Add(-time.Minute), updated)
	conv.Messages = append(conv.Messages,
		&model.Message{ID: "u1", ConversationID: id, Role: model.RoleUser, Content: "Hello there", Timestamp: updated},
		&model.Message{ID: "a1", ConversationID: id, Role: model.RoleAssistant, Content: "Hi!", ModelID: "gpt-4o", Timestamp: updated,
			Metadata: &model.MessageMetadata{TokenUsage: &model.TokenUsage{TotalTokens: 12}, FinishReason: "stop"}},
	)
	return conv
}

func TestArchive_SaveAndGet(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	conv := testConversation("1", time.Now())

	require.NoError(t, a.Save(ctx, conv))

	loaded, err := a.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, conv.Title, loaded.Title)
	assert.Equal(t, conv.Models, loaded.Models)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "u1", loaded.Messages[0].ID)
	assert.Equal(t, "gpt-4o", loaded.Messages[1].ModelID)
	require.NotNil(t, loaded.Messages[1].Metadata)
	assert.Equal(t, 12, loaded.Messages[1].Metadata.TokenUsage.TotalTokens)
	assert.Nil(t, loaded.Messages[0].Metadata)
}

func TestArchive_SaveReplacesMessages(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	conv := testConversation("1", time.Now())
	require.NoError(t, a.Save(ctx, conv))

	conv.AddMessage(&model.Message{ID: "u2", Role: model.RoleUser, Content: "again", Timestamp: time.Now()})
	conv.Local = true
	require.NoError(t, a.Save(ctx, conv))

	loaded, err := a.Get(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 3)
	assert.True(t, loaded.Local)
}

func TestArchive_GetNotFound(t *testing.T) {
	a := openTestArchive(t)
	_, err := a.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrConversationNotFound))
}

func TestArchive_ListAndSearch(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	older := testConversation("old", now.Add(-time.Hour))
	newer := testConversation("new", now)
	newer.Messages[0].Content = "Tell me about 100% coverage"
	require.NoError(t, a.Save(ctx, older))
	require.NoError(t, a.Save(ctx, newer))

	metas, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "new", metas[0].ID, "most recent first")
	assert.Equal(t, 2, metas[0].MessageCount)
	assert.Equal(t, "Tell me about 100% coverage", metas[0].Preview)

	found, err := a.Search(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "new", found[0].ID)

	found, err = a.Search(ctx, "HELLO")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "old", found[0].ID)
}

func TestArchive_LoadAllAndDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	require.NoError(t, a.Save(ctx, testConversation("1", time.Now())))
	require.NoError(t, a.Save(ctx, testConversation("2", time.Now().Add(time.Second))))

	all, err := a.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID)
	assert.Len(t, all[1].Messages, 2)

	require.NoError(t, a.Delete(ctx, "1"))
	assert.True(t, errors.Is(a.Delete(ctx, "1"), ErrConversationNotFound))

	metas, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestArchive_EnforceLimit(t *testing.T) {
	a := openTestArchive(t)
	a.MaxConversations = 2
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.Save(ctx, testConversation(id, base.Add(time.Duration(i)*time.Second))))
	}

	metas, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "c", metas[0].ID)
	assert.Equal(t, "b", metas[1].ID)
}

func TestExportMarkdown(t *testing.T) {
	md := ExportMarkdown(testConversation("1", time.Now()))
	assert.True(t, strings.HasPrefix(md, "# New Conversation"))
	assert.Contains(t, md, "**You**")
	assert.Contains(t, md, "**gpt-4o**")
	assert.Contains(t, md, "Models: gpt-4o, claude-3.5-sonnet")
}

func TestFormatConversationList(t *testing.T) {
	assert.Equal(t, "No conversations found.", FormatConversationList(nil))

	out := FormatConversationList([]ConversationMeta{{ID: "42", Title: "Local chat", Local: true, MessageCount: 3, Models: []string{"gpt-4o"}}})
	assert.Contains(t, out, "Local chat *")
	assert.Contains(t, out, "gpt-4o")
}
