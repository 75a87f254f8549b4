// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// Titles given to new conversations.
const (
	DefaultTitle = "New Conversation"
	LocalTitle   = "New Conversation (Local)"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered transcript and the models taking part in it.
// Messages are append-only; insertion order is chronological order.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Models    []string   `json:"models"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Local marks a conversation that only exists on this client because the
	// backend could not be reached when it was created.
	Local bool `json:"local,omitempty"`
}

// NewConversation creates an empty conversation.
func NewConversation(id, title string, models []string, createdAt, updatedAt time.Time) *Conversation {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.Before(createdAt) {
		updatedAt = createdAt
	}
	return &Conversation{
		ID:        id,
		Title:     title,
		Messages:  make([]*Message, 0),
		Models:    append([]string(nil), models...),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.Touch(time.Now())
}

// Touch sets UpdatedAt to now, never earlier than CreatedAt.
func (c *Conversation) Touch(now time.Time) {
	if now.Before(c.CreatedAt) {
		now = c.CreatedAt
	}
	c.UpdatedAt = now
}

// MessageByID returns the message with the given id, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessagesFor returns the transcript as seen from modelID's column.
func (c *Conversation) MessagesFor(modelID string) []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.BelongsTo(modelID) {
			out = append(out, msg)
		}
	}
	return out
}

// CountAssistant returns how many assistant messages modelID has.
func (c *Conversation) CountAssistant(modelID string) int {
	n := 0
	for _, msg := range c.Messages {
		if msg.Role == RoleAssistant && msg.ModelID == modelID {
			n++
		}
	}
	return n
}

// HasModel reports whether modelID participates in the conversation.
func (c *Conversation) HasModel(modelID string) bool {
	for _, m := range c.Models {
		if m == modelID {
			return true
		}
	}
	return false
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Models = append([]string(nil), c.Models...)
	cp.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		cp.Messages[i] = msg.Clone()
	}
	return &cp
}
