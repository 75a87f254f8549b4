// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cable

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
		ok   bool
	}{
		{"token", `{"type":"token","content":"Hel"}`, Event{Kind: EventToken, Content: "Hel"}, true},
		{"status", `{"type":"status","status":"generating"}`, Event{Kind: EventStatus, Status: "generating"}, true},
		{"complete", `{"type":"message_complete","content":"Hello"}`, Event{Kind: EventComplete, Content: "Hello"}, true},
		{"error", `{"type":"error","message":"boom"}`, Event{Kind: EventError, Message: "boom"}, true},
		{"connected camel", `{"type":"connected","connectionId":"c1"}`, Event{Kind: EventStreamConnected, ConnectionID: "c1"}, true},
		{"connected snake", `{"type":"connected","connection_id":"c2"}`, Event{Kind: EventStreamConnected, ConnectionID: "c2"}, true},
		{"nested string", `{"event":"stream","data":"{\"type\":\"token\",\"content\":\"x\"}"}`, Event{Kind: EventToken, Content: "x"}, true},
		{"nested object", `{"event":"stream","data":{"type":"token","content":"y"}}`, Event{Kind: EventToken, Content: "y"}, true},
		{"nested unparseable uses outer", `{"event":"stream","type":"token","content":"outer","data":"not json"}`, Event{Kind: EventToken, Content: "outer"}, true},
		{"unknown type", `{"type":"thinking"}`, Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodePayload(json.RawMessage(tt.raw))
			require.NoError(t, err)
			ev, ok := p.toEvent("")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := decodePayload(json.RawMessage(`"just a string"`))
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.NotNil(t, errors.Unwrap(err))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "token", EventToken.String())
	assert.Equal(t, "disconnected", EventDisconnected.String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `{"channel":"StreamingChannel","conversationId":"1","exchangeId":"2"}`, Identifier("1", "2"))
}

func TestOriginFor(t *testing.T) {
	assert.Equal(t, "http://localhost:3200", originFor("ws://localhost:3200/cable"))
	assert.Equal(t, "https://chat.example.com", originFor("wss://chat.example.com/cable"))
	assert.Equal(t, "", originFor("::"))
}
