// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/jeranaias/chatsapp/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a role the backend accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// TokenUsage is the token accounting reported by the backend.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// MessageMetadata is externally supplied and never interpreted by the
// streaming core.
type MessageMetadata struct {
	TokenUsage   *TokenUsage   `json:"token_usage,omitempty"`
	ResponseTime time.Duration `json:"response_time_ns,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`

	// ModelID is set on assistant messages when they belong to one of
	// several participating models.
	ModelID string `json:"model_id,omitempty"`

	// IsStreaming only ever moves from true to false.
	IsStreaming bool `json:"is_streaming,omitempty"`

	Metadata *MessageMetadata `json:"metadata,omitempty"`
}

// Draft is a message that has not been assigned an identifier yet.
type Draft struct {
	Role     Role
	Content  string
	ModelID  string
	Metadata *MessageMetadata
}

// NewUserMessage creates a user message with the given id.
func NewUserMessage(conversationID, id, content string) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// NewAssistantMessage materializes a completed assistant message for modelID.
// The id is derived from the model and the materialization time, which is
// unique because a model streams at most one exchange at a time.
func NewAssistantMessage(conversationID, modelID, content string) *Message {
	now := time.Now()
	return &Message{
		ID:             AssistantMessageID(modelID, now),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        content,
		ModelID:        modelID,
		Timestamp:      now,
	}
}

// AssistantMessageID returns the local id given to a materialized assistant
// message.
func AssistantMessageID(modelID string, at time.Time) string {
	return fmt.Sprintf("assistant_%s_%d", modelID, at.UnixNano())
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Metadata != nil {
		meta := *m.Metadata
		if m.Metadata.TokenUsage != nil {
			usage := *m.Metadata.TokenUsage
			meta.TokenUsage = &usage
		}
		c.Metadata = &meta
	}
	return &c
}

// Preview returns a truncated single-line preview of the content.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.FirstLine(m.Content), maxLen)
}

// BelongsTo reports whether the message should be shown in modelID's
// transcript: every user message, plus assistant messages from that model
// or with no model attribution.
func (m *Message) BelongsTo(modelID string) bool {
	if m.Role == RoleUser {
		return true
	}
	return m.ModelID == "" || m.ModelID == modelID
}
