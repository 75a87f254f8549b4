// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// =============================================================================
// STREAM STATUS
// =============================================================================

// StreamStatus is the lifecycle position of one model's stream.
type StreamStatus string

const (
	StatusDisconnected StreamStatus = "disconnected"
	StatusConnecting   StreamStatus = "connecting"
	StatusConnected    StreamStatus = "connected"
	StatusGenerating   StreamStatus = "generating"
	StatusComplete     StreamStatus = "complete"
	StatusError        StreamStatus = "error"
)

// ParseStreamStatus converts a wire status string.
func ParseStreamStatus(s string) (StreamStatus, bool) {
	switch st := StreamStatus(s); st {
	case StatusDisconnected, StatusConnecting, StatusConnected,
		StatusGenerating, StatusComplete, StatusError:
		return st, true
	}
	return "", false
}

// IsActive reports whether a stream with this status is still in flight.
func (s StreamStatus) IsActive() bool {
	return s == StatusConnecting || s == StatusConnected || s == StatusGenerating
}

// Label returns a short indicator for status lines.
func (s StreamStatus) Label() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusGenerating:
		return "Generating..."
	case StatusComplete:
		return "Complete"
	case StatusError:
		return "Error"
	default:
		return "Idle"
	}
}

// =============================================================================
// STREAMING STATE
// =============================================================================

// StreamingState is the live state of a single model's in-flight response.
type StreamingState struct {
	IsStreaming    bool         `json:"is_streaming"`
	Status         StreamStatus `json:"status"`
	CurrentMessage string       `json:"current_message"`

	// MessageID is the exchange the state belongs to.
	MessageID    string `json:"message_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewStreamingState returns the state of a model that has never streamed.
func NewStreamingState() StreamingState {
	return StreamingState{Status: StatusDisconnected}
}

// Normalize enforces that IsStreaming implies an active status.
func (s *StreamingState) Normalize() {
	if s.Status == "" {
		s.Status = StatusDisconnected
	}
	if s.IsStreaming && !s.Status.IsActive() {
		s.IsStreaming = false
	}
}

// SubscriptionKey names the subscription carrying one exchange.
func SubscriptionKey(conversationID, exchangeID string) string {
	return fmt.Sprintf("conversation_%s_%s", conversationID, exchangeID)
}
