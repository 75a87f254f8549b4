// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jeranaias/chatsapp/internal/model"
)

// =============================================================================
// FLEXIBLE SCALARS
// =============================================================================

// ID decodes a JSON number or string into a string identifier.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// timestamp accepts RFC 3339 strings and unix seconds or milliseconds.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*t = timestamp(parsed)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	if n > 1e12 {
		*t = timestamp(time.UnixMilli(n))
	} else {
		*t = timestamp(time.Unix(n, 0))
	}
	return nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireConversation struct {
	ID            ID        `json:"id"`
	Title         string    `json:"title"`
	Models        []string  `json:"models"`
	ModelIDs      []string  `json:"modelIds"`
	SnakeModelIDs []string  `json:"model_ids"`
	AIModel       string    `json:"ai_model"`
	ModelA        string    `json:"model_a"`
	ModelB        string    `json:"model_b"`
	CreatedAt     timestamp `json:"created_at"`
	UpdatedAt     timestamp `json:"updated_at"`
}

func (w wireConversation) toModel() *model.Conversation {
	models := w.Models
	switch {
	case len(models) > 0:
	case len(w.ModelIDs) > 0:
		models = w.ModelIDs
	case len(w.SnakeModelIDs) > 0:
		models = w.SnakeModelIDs
	default:
		for _, m := range []string{w.AIModel, w.ModelA, w.ModelB} {
			if m != "" {
				models = append(models, m)
			}
		}
	}
	return model.NewConversation(string(w.ID), w.Title, models,
		time.Time(w.CreatedAt), time.Time(w.UpdatedAt))
}

type wireMessage struct {
	ID             ID                     `json:"id"`
	ConversationID ID                     `json:"conversation_id"`
	Content        string                 `json:"content"`
	Role           string                 `json:"role"`
	ModelID        string                 `json:"model_id"`
	CreatedAt      timestamp              `json:"created_at"`
	Metadata       *model.MessageMetadata `json:"metadata"`
}

func (w wireMessage) toModel(conversationID string) *model.Message {
	if w.ConversationID != "" {
		conversationID = string(w.ConversationID)
	}
	ts := time.Time(w.CreatedAt)
	if ts.IsZero() {
		ts = time.Now()
	}
	return &model.Message{
		ID:             string(w.ID),
		ConversationID: conversationID,
		Role:           model.Role(w.Role),
		Content:        w.Content,
		ModelID:        w.ModelID,
		Timestamp:      ts,
		Metadata:       w.Metadata,
	}
}

// unwrap decodes body into out, looking first under key and falling back to
// the body itself.
func unwrap(body []byte, key string, out interface{}) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if inner, ok := envelope[key]; ok && len(inner) > 0 && inner[0] == '{' {
			return json.Unmarshal(inner, out)
		}
	}
	return json.Unmarshal(body, out)
}

// errorBody is the backend's failure payload.
type errorBody struct {
	Error  string          `json:"error"`
	Errors json.RawMessage `json:"errors"`
}

// details flattens "errors" given as a list or as a field -> messages map.
func (b errorBody) details() []string {
	if len(b.Errors) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(b.Errors, &list); err == nil {
		return list
	}
	var byField map[string][]string
	if err := json.Unmarshal(b.Errors, &byField); err == nil {
		fields := make([]string, 0, len(byField))
		for f := range byField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			for _, msg := range byField[f] {
				list = append(list, f+" "+msg)
			}
		}
		return list
	}
	return nil
}
