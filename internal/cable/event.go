// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cable

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates Events.
type EventKind int

const (
	// EventSubscribed is the channel's confirmation of a subscription.
	EventSubscribed EventKind = iota
	// EventStreamConnected is the backend's "connected" frame for an exchange.
	EventStreamConnected
	// EventToken carries an incremental content chunk.
	EventToken
	// EventStatus is a coarse-grained status advisory.
	EventStatus
	// EventComplete carries the final content and ends the exchange.
	EventComplete
	// EventError is terminal for the exchange.
	EventError
	// EventDisconnected reports loss of the transport.
	EventDisconnected
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSubscribed:
		return "subscribed"
	case EventStreamConnected:
		return "stream_connected"
	case EventToken:
		return "token"
	case EventStatus:
		return "status"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one decoded inbound event for a subscription.
type Event struct {
	Kind EventKind
	// Key is the subscription key the event belongs to.
	Key string

	// Content is the chunk for EventToken and the final text for EventComplete.
	Content string
	// Status is set for EventStatus.
	Status string
	// ConnectionID is set for EventStreamConnected when the backend sends one.
	ConnectionID string
	// Message is the error text for EventError.
	Message string
}

// Handler receives the events of one subscription.
type Handler func(Event)

// =============================================================================
// FRAME DECODING
// =============================================================================

// ProtocolError reports an inbound frame that could not be decoded.
type ProtocolError struct {
	Frame string
	Cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Frame, e.Cause)
}

// Unwrap returns the underlying decode error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// frame is the ActionCable envelope of every server message.
type frame struct {
	Type       string          `json:"type"`
	Identifier string          `json:"identifier"`
	Message    json.RawMessage `json:"message"`
	Reason     string          `json:"reason"`
}

// payload is the streaming channel's message body.
type payload struct {
	Type              string `json:"type"`
	Content           string `json:"content"`
	Status            string `json:"status"`
	ConnectionID      string `json:"connectionId"`
	ConnectionIDSnake string `json:"connection_id"`
	Message           string `json:"message"`

	// Some frames wrap the real payload as a JSON string under data.
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, &ProtocolError{Frame: truncate(data), Cause: err}
	}
	return f, nil
}

// decodePayload decodes a channel message, unwrapping one level of
// {event, data} envelope. When the inner data cannot be parsed the outer
// payload is used.
func decodePayload(raw json.RawMessage) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, &ProtocolError{Frame: truncate(raw), Cause: err}
	}
	if p.Event == "" || len(p.Data) == 0 {
		return p, nil
	}

	inner := []byte(p.Data)
	var s string
	if err := json.Unmarshal(p.Data, &s); err == nil {
		inner = []byte(s)
	}
	var nested payload
	if err := json.Unmarshal(inner, &nested); err != nil {
		return p, nil
	}
	return nested, nil
}

// toEvent maps a payload onto an Event; ok is false for unknown types.
func (p payload) toEvent(key string) (Event, bool) {
	ev := Event{Key: key}
	switch p.Type {
	case "connected":
		ev.Kind = EventStreamConnected
		ev.ConnectionID = p.ConnectionID
		if ev.ConnectionID == "" {
			ev.ConnectionID = p.ConnectionIDSnake
		}
	case "token":
		ev.Kind = EventToken
		ev.Content = p.Content
	case "status":
		ev.Kind = EventStatus
		ev.Status = p.Status
	case "message_complete":
		ev.Kind = EventComplete
		ev.Content = p.Content
	case "error":
		ev.Kind = EventError
		ev.Message = p.Message
	default:
		return Event{}, false
	}
	return ev, true
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
