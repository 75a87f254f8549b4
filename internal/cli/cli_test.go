// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

// backend serves the REST API under /api/v1 and the cable under /cable. Each
// subscription gets reply streamed back as two tokens and a completion.
type backend struct {
	*httptest.Server
	reply    string
	messages atomic.Int32
}

func newBackend(t *testing.T, reply string) *backend {
	t.Helper()
	b := &backend{reply: reply}
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"actioncable-v1-json"},
		CheckOrigin:  func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			fmt.Fprint(w, `{"id": 7, "title": "New Conversation", "modelIds": ["gpt-4o"]}`)
		default:
			fmt.Fprint(w, `{"conversations": [
				{"id": 7, "title": "Go questions", "modelIds": ["gpt-4o"], "updated_at": "2025-01-02T10:00:00Z"},
				{"id": 8, "title": "Rust questions", "modelIds": ["gpt-4o"], "updated_at": "2025-01-01T10:00:00Z"}
			]}`)
		}
	})
	mux.HandleFunc("/api/v1/conversations/7/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		n := b.messages.Add(1)
		fmt.Fprintf(w, `{"message": {"id": %d, "role": "user", "content": %q}}`, 100+n, req.Content)
	})
	mux.HandleFunc("/api/v1/conversations/7/stream", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"connectionId": "c-1"}`)
	})
	mux.HandleFunc("/api/v1/conversations/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation": {"id": 7, "title": "Go questions"},
			"messages": [{"id": 1, "role": "user", "content": "What is a channel?"}]}`)
	})
	mux.HandleFunc("/api/v1/conversations/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "Conversation not found"}`)
	})
	mux.HandleFunc("/cable", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteJSON(map[string]string{"type": "welcome"})
		for {
			var cmd struct {
				Command    string `json:"command"`
				Identifier string `json:"identifier"`
			}
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Command != "subscribe" {
				continue
			}
			_ = ws.WriteJSON(map[string]string{"type": "confirm_subscription", "identifier": cmd.Identifier})
			half := len(b.reply) / 2
			for _, tok := range []string{b.reply[:half], b.reply[half:]} {
				_ = ws.WriteJSON(map[string]interface{}{
					"identifier": cmd.Identifier,
					"message":    map[string]string{"type": "token", "content": tok},
				})
			}
			_ = ws.WriteJSON(map[string]interface{}{
				"identifier": cmd.Identifier,
				"message":    map[string]string{"type": "message_complete", "content": b.reply},
			})
		}
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// writeConfig writes a TOML config pointing at b (or nowhere when b is nil).
func writeConfig(t *testing.T, b *backend, extra string) string {
	t.Helper()
	dir := t.TempDir()
	apiURL, cableURL := "http://127.0.0.1:1/api/v1", "ws://127.0.0.1:1/cable"
	if b != nil {
		apiURL = b.URL + "/api/v1"
		cableURL = "ws" + strings.TrimPrefix(b.URL, "http") + "/cable"
	}
	content := fmt.Sprintf(`
[api]
base_url = %q
timeout_secs = 5

[cable]
url = %q

[session]
models = ["gpt-4o"]
clear_delay_ms = 10

[storage]
enabled = true
path = %q

[ui]
theme = "ascii"
%s`, apiURL, cableURL, filepath.Join(dir, "archive.db"), extra)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// run executes the command tree with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &App{Version: "test", In: strings.NewReader(stdin), Out: &out, Err: &errOut}
	root := newRootCmd(a)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigPathAndShow(t *testing.T) {
	path := writeConfig(t, nil, "")

	out, _, err := run(t, "", "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, _, err = run(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"base_url": "http://127.0.0.1:1/api/v1"`)
}

func TestConfigSetThenGet(t *testing.T) {
	path := writeConfig(t, nil, "")

	out, _, err := run(t, "", "--config", path, "config", "set", "session.models", "gpt-4o,gemini-pro")
	require.NoError(t, err)
	assert.Contains(t, out, "Set session.models")

	out, _, err = run(t, "", "--config", path, "config", "get", "session.models")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o,gemini-pro\n", out)

	// Other values in the file survive the rewrite.
	out, _, err = run(t, "", "--config", path, "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "ascii\n", out)
}

func TestConfigSetRejectsInvalid(t *testing.T) {
	path := writeConfig(t, nil, "")

	_, _, err := run(t, "", "--config", path, "config", "set", "ui.theme", "neon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ui.theme")

	_, _, err = run(t, "", "--config", path, "config", "set", "no.such.key", "1")
	assert.Error(t, err)
}

func TestConfigGetTokenRefused(t *testing.T) {
	path := writeConfig(t, nil, "")
	_, _, err := run(t, "", "--config", path, "config", "get", "api.token")
	assert.Error(t, err)
}

// =============================================================================
// ASK
// =============================================================================

func TestAskPrintsEveryModel(t *testing.T) {
	b := newBackend(t, "Channels pass values.")
	path := writeConfig(t, b, "")

	out, _, err := run(t, "", "--config", path, "ask", "--raw", "-m", "gpt-4o,claude-3.5-sonnet", "What is a channel?")
	require.NoError(t, err)
	assert.Contains(t, out, "== gpt-4o ==")
	assert.Contains(t, out, "== claude-3.5-sonnet ==")
	assert.Equal(t, 2, strings.Count(out, "Channels pass values."))
	assert.Equal(t, int32(1), b.messages.Load())
}

func TestAskArchivesTheTurn(t *testing.T) {
	b := newBackend(t, "Hello back")
	path := writeConfig(t, b, "")

	_, _, err := run(t, "", "--config", path, "ask", "--raw", "hello")
	require.NoError(t, err)

	out, _, err := run(t, "", "--config", path, "conversations", "show", "7", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "**You**")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "**gpt-4o**")
	assert.Contains(t, out, "Hello back")
}

func TestAskUnknownModel(t *testing.T) {
	path := writeConfig(t, nil, "")
	_, _, err := run(t, "", "--config", path, "ask", "-m", "nope", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model nope")
}

func TestAskBackendDown(t *testing.T) {
	path := writeConfig(t, nil, "")

	out, errOut, err := run(t, "", "--config", path, "ask", "--raw", "hi")
	assert.ErrorIs(t, err, errAllFailed)
	assert.Contains(t, errOut, "conversation kept locally")
	assert.Contains(t, out, "Error:")
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationsRemote(t *testing.T) {
	b := newBackend(t, "")
	path := writeConfig(t, b, "")

	out, _, err := run(t, "", "--config", path, "conversations")
	require.NoError(t, err)
	assert.Contains(t, out, "Go questions")
	assert.Contains(t, out, "Rust questions")
	assert.Less(t, strings.Index(out, "Go questions"), strings.Index(out, "Rust questions"))

	out, _, err = run(t, "", "--config", path, "conversations", "--search", "rust")
	require.NoError(t, err)
	assert.NotContains(t, out, "Go questions")
	assert.Contains(t, out, "Rust questions")
}

func TestConversationsLocal(t *testing.T) {
	path := writeConfig(t, nil, "")
	archive, err := storage.Open(filepath.Join(filepath.Dir(path), "archive.db"))
	require.NoError(t, err)
	conv := model.NewConversation("local-1", "Archived chat", []string{"gpt-4o"}, time.Now(), time.Now())
	conv.AddMessage(model.NewUserMessage(conv.ID, "m1", "remember me"))
	require.NoError(t, archive.Save(context.Background(), conv))
	require.NoError(t, archive.Close())

	out, _, err := run(t, "", "--config", path, "conversations", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "Archived chat")

	out, _, err = run(t, "", "--config", path, "conversations", "--local", "--search", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations found.")

	out, _, err = run(t, "", "--config", path, "conversations", "show", "local-1", "--json")
	require.NoError(t, err)
	var got model.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Archived chat", got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "remember me", got.Messages[0].Content)
}

func TestConversationShowRemote(t *testing.T) {
	b := newBackend(t, "")
	path := writeConfig(t, b, "")

	out, _, err := run(t, "", "--config", path, "conversations", "show", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "# Go questions")
	assert.Contains(t, out, "What is a channel?")

	_, _, err = run(t, "", "--config", path, "conversations", "show", "404")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

// =============================================================================
// CHAT (PLAIN MODE)
// =============================================================================

func TestChatPlainSession(t *testing.T) {
	b := newBackend(t, "Sure thing")
	path := writeConfig(t, b, "")

	stdin := "/help\nfirst\n/models claude-3.5-sonnet\nsecond\n/bogus\n/quit\nnever sent\n"
	out, _, err := run(t, stdin, "--config", path, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "/models [a,b]")
	assert.Equal(t, 2, strings.Count(out, "Sure thing"))
	assert.Contains(t, out, "Next message goes to claude-3.5-sonnet")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Equal(t, int32(2), b.messages.Load())
}

func TestChatPlainEndsOnEOF(t *testing.T) {
	path := writeConfig(t, nil, "")
	out, _, err := run(t, "", "--config", path, "chat", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Type /help for commands.")
}

func TestChatResumeUnknownConversation(t *testing.T) {
	path := writeConfig(t, nil, "")
	_, _, err := run(t, "", "--config", path, "chat", "--plain", "-c", "missing")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
