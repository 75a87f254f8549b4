// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cable

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented, full-duplex transport.
// ReadMessage is only ever called from one goroutine; WriteMessage may be
// called concurrently with it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// Subprotocols offered on the handshake.
var Subprotocols = []string{"actioncable-v1-json", "actioncable-unsupported"}

// =============================================================================
// WEBSOCKET DIALER
// =============================================================================

// WebSocketDialer dials ActionCable endpoints with gorilla/websocket.
type WebSocketDialer struct {
	// Origin is sent on the handshake; derived from the URL when empty.
	Origin string
	// Header holds extra handshake headers (e.g. Authorization).
	Header http.Header
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer returns a dialer with a 10s handshake timeout.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: 10 * time.Second}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     Subprotocols,
	}

	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	origin := d.Origin
	if origin == "" {
		origin = originFor(rawURL)
	}
	if origin != "" {
		header.Set("Origin", origin)
	}

	ws, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// originFor maps ws(s)://host/path to http(s)://host.
func originFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if strings.EqualFold(u.Scheme, "wss") {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// wsConn adapts *websocket.Conn, which allows one concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
