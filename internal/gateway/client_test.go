// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatsapp/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL + "/").WithLogger(log.New(io.Discard, "", 0), true)
	return c, srv
}

func TestCreateConversation_Wrapped(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "New Conversation", body["title"])
		assert.Equal(t, []interface{}{"gpt-4o", "gemini-pro"}, body["modelIds"])

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"conversation":{"id":42,"title":"New Conversation","created_at":"2025-01-02T03:04:05Z"},"message":"created"}`)
	})

	conv, err := c.CreateConversation(context.Background(), model.DefaultTitle, []string{"gpt-4o", "gemini-pro"})
	require.NoError(t, err)
	assert.Equal(t, "42", conv.ID)
	assert.Equal(t, []string{"gpt-4o", "gemini-pro"}, conv.Models, "models fall back to the request")
	assert.Equal(t, 2025, conv.CreatedAt.Year())
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))
}

func TestCreateConversation_Flat(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"abc","title":"Chat","modelIds":["m1"]}`)
	})

	conv, err := c.CreateConversation(context.Background(), "Chat", []string{"other"})
	require.NoError(t, err)
	assert.Equal(t, "abc", conv.ID)
	assert.Equal(t, []string{"m1"}, conv.Models)
}

func TestCreateConversation_MissingID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"title":"Chat"}`)
	})

	_, err := c.CreateConversation(context.Background(), "Chat", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid response", apiErr.Message)
}

func TestCreateMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/42/messages", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hi", body["content"])
		assert.Equal(t, "user", body["role"])
		io.WriteString(w, `{"message":{"id":7,"content":"Hi","role":"user","conversation_id":42}}`)
	})

	msg, err := c.CreateMessage(context.Background(), "42", "Hi", model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "7", msg.ID)
	assert.Equal(t, "42", msg.ConversationID)
	assert.Equal(t, model.RoleUser, msg.Role)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestInitializeStream(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"camel", `{"connectionId":"c-1","streamName":"s-1"}`},
		{"snake", `{"connection_id":"c-1","stream_name":"s-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/conversations/42/stream", r.URL.Path)
				assert.Equal(t, "7", r.URL.Query().Get("exchangeId"))
				assert.Equal(t, "websocket", r.URL.Query().Get("transport"))
				io.WriteString(w, tt.body)
			})

			si, err := c.InitializeStream(context.Background(), "42", "7")
			require.NoError(t, err)
			assert.Equal(t, "c-1", si.ConnectionID)
			assert.Equal(t, "s-1", si.StreamName)
		})
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		details []string
	}{
		{"error field", http.StatusUnprocessableEntity, `{"error":"Validation failed","errors":["title is too long"]}`, "Validation failed", []string{"title is too long"}},
		{"errors map", http.StatusUnprocessableEntity, `{"error":"Invalid","errors":{"title":["can't be blank"]}}`, "Invalid", []string{"title can't be blank"}},
		{"no body", http.StatusInternalServerError, ``, "HTTP 500", nil},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "HTTP 502", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.CreateMessage(context.Background(), "1", "x", model.RoleUser)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.details, apiErr.Errors)
			assert.False(t, IsNetworkError(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url).WithLogger(log.New(io.Discard, "", 0), false)
	_, err := c.CreateConversation(context.Background(), "x", []string{"m"})
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestBearerToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		io.WriteString(w, `[]`)
	})
	c.WithToken(" tok ")

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestListConversations(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"conversations":[{"id":1,"title":"A","ai_model":"gpt-4o"},{"id":"2","title":"B","model_a":"m1","model_b":"m2"}],"ai_models":["gpt-4o"]}`)
	})

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "1", convs[0].ID)
	assert.Equal(t, []string{"gpt-4o"}, convs[0].Models)
	assert.Equal(t, []string{"m1", "m2"}, convs[1].Models)
}

func TestGetConversation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/9", r.URL.Path)
		io.WriteString(w, `{"conversation":{"id":9,"title":"T","models":["a"]},"messages":[
			{"id":1,"content":"q","role":"user","conversation_id":9,"created_at":1700000000},
			{"id":2,"content":"r","role":"assistant","model_id":"a","created_at":"2025-01-01T00:00:00Z"}]}`)
	})

	conv, err := c.GetConversation(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "9", conv.Messages[1].ConversationID)
	assert.Equal(t, "a", conv.Messages[1].ModelID)
	assert.Equal(t, int64(1700000000), conv.Messages[0].Timestamp.Unix())
}

func TestRateLimit_RespectsContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	c.WithRateLimit(0.001, 1)

	_, err := c.ListConversations(context.Background())
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListConversations(ctx)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestIDUnmarshal(t *testing.T) {
	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`[1, "two", 3.0, null, 12345678901234]`), &ids))
	assert.Equal(t, []ID{"1", "two", "3.0", "", "12345678901234"}, ids)
	assert.Error(t, json.Unmarshal([]byte(`[true]`), &ids))
}
