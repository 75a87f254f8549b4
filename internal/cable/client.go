// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jeranaias/chatsapp/internal/model"
)

// ChannelName is the server-side channel carrying exchange streams.
const ChannelName = "StreamingChannel"

// ErrNotConnected is returned by Subscribe before Connect has succeeded.
var ErrNotConnected = errors.New("cable: not connected")

// Identifier returns the channel identifier of one exchange's subscription,
// exactly as sent in the subscribe command.
func Identifier(conversationID, exchangeID string) string {
	data, _ := json.Marshal(struct {
		Channel        string `json:"channel"`
		ConversationID string `json:"conversationId"`
		ExchangeID     string `json:"exchangeId"`
	}{ChannelName, conversationID, exchangeID})
	return string(data)
}

// subscription is one live channel subscription.
type subscription struct {
	key        string
	identifier string
	handler    Handler
}

// Client owns one transport connection and its subscriptions.
type Client struct {
	url    string
	dialer Dialer
	logger *log.Logger
	debug  bool

	mu     sync.Mutex
	conn   Conn
	subs   map[string]*subscription // by key
	byID   map[string]*subscription // by identifier
	onLost func(error)
}

// NewClient creates a client for the cable endpoint at url.
func NewClient(url string, dialer Dialer) *Client {
	return &Client{
		url:    url,
		dialer: dialer,
		logger: log.Default(),
		subs:   make(map[string]*subscription),
		byID:   make(map[string]*subscription),
	}
}

// WithLogger sets the logger. With debug set, every frame is logged.
func (c *Client) WithLogger(logger *log.Logger, debug bool) *Client {
	if logger != nil {
		c.logger = logger
	}
	c.debug = debug
	return c
}

// OnConnectionLost registers fn to run after an unexpected transport loss,
// once every subscription has received EventDisconnected.
func (c *Client) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

// =============================================================================
// CONNECTION
// =============================================================================

// Connect opens the transport. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.logger.Printf("CABLE_CONNECT_FAILED | url=%s error=%v", c.url, err)
		return fmt.Errorf("cable: connect %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost a race with a concurrent Connect.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Printf("CABLE_CONNECTED | url=%s", c.url)
	go c.readLoop(conn)
	return nil
}

// IsConnected reports whether a transport is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect unsubscribes everything and closes the transport.
// Subscribe fails with ErrNotConnected until the next Connect.
func (c *Client) Disconnect() {
	c.UnsubscribeAll()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.logger.Printf("CABLE_DISCONNECTED | url=%s", c.url)
	}
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe opens the subscription for one exchange and returns its key.
// An existing subscription with the same key is torn down first.
func (c *Client) Subscribe(conversationID, exchangeID string, handler Handler) (string, error) {
	key := model.SubscriptionKey(conversationID, exchangeID)
	identifier := Identifier(conversationID, exchangeID)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	old := c.removeLocked(key)
	sub := &subscription{key: key, identifier: identifier, handler: handler}
	c.subs[key] = sub
	c.byID[sub.identifier] = sub
	c.mu.Unlock()

	if old != nil {
		c.send(conn, "unsubscribe", old.identifier)
		c.logger.Printf("CABLE_RESUBSCRIBE | key=%s", key)
	}

	if err := c.send(conn, "subscribe", sub.identifier); err != nil {
		c.mu.Lock()
		if c.subs[key] == sub {
			c.removeLocked(key)
		}
		c.mu.Unlock()
		return "", fmt.Errorf("cable: subscribe %s: %w", key, err)
	}

	c.logger.Printf("CABLE_SUBSCRIBE | key=%s", key)
	return key, nil
}

// Unsubscribe removes the subscription for key. Unknown keys are ignored.
func (c *Client) Unsubscribe(key string) {
	c.mu.Lock()
	sub := c.removeLocked(key)
	conn := c.conn
	c.mu.Unlock()

	if sub == nil {
		return
	}
	if conn != nil {
		c.send(conn, "unsubscribe", sub.identifier)
	}
	c.logger.Printf("CABLE_UNSUBSCRIBED | key=%s", key)
}

// UnsubscribeAll removes every subscription.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for key := range c.subs {
		subs = append(subs, c.removeLocked(key))
	}
	conn := c.conn
	c.mu.Unlock()

	for _, sub := range subs {
		if conn != nil {
			c.send(conn, "unsubscribe", sub.identifier)
		}
		c.logger.Printf("CABLE_UNSUBSCRIBED | key=%s", sub.key)
	}
}

// ActiveSubscriptionCount returns the number of live subscriptions.
func (c *Client) ActiveSubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// HasSubscription reports whether key is subscribed.
func (c *Client) HasSubscription(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[key]
	return ok
}

func (c *Client) removeLocked(key string) *subscription {
	sub, ok := c.subs[key]
	if !ok {
		return nil
	}
	delete(c.subs, key)
	delete(c.byID, sub.identifier)
	return sub
}

func (c *Client) lookup(identifier string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[identifier]
}

func (c *Client) send(conn Conn, command, identifier string) error {
	data, err := json.Marshal(struct {
		Command    string `json:"command"`
		Identifier string `json:"identifier"`
	}{command, identifier})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(data); err != nil {
		c.logger.Printf("CABLE_SEND_FAILED | command=%s error=%v", command, err)
		return err
	}
	return nil
}

// =============================================================================
// INBOUND DISPATCH
// =============================================================================

// readLoop dispatches every frame of conn on this goroutine until the
// transport fails.
func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleLoss(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.logger.Printf("CABLE_BAD_FRAME | error=%v", err)
		return
	}

	switch f.Type {
	case "welcome":
		c.logger.Printf("CABLE_WELCOME | url=%s", c.url)
	case "ping":
		if c.debug {
			c.logger.Printf("CABLE_PING")
		}
	case "disconnect":
		c.logger.Printf("CABLE_SERVER_DISCONNECT | reason=%s", f.Reason)
	case "confirm_subscription":
		if sub := c.lookup(f.Identifier); sub != nil {
			c.logger.Printf("CABLE_SUBSCRIBED | key=%s", sub.key)
			sub.handler(Event{Kind: EventSubscribed, Key: sub.key})
		}
	case "reject_subscription":
		c.mu.Lock()
		sub := c.byID[f.Identifier]
		if sub != nil {
			c.removeLocked(sub.key)
		}
		c.mu.Unlock()
		if sub != nil {
			c.logger.Printf("CABLE_REJECTED | key=%s", sub.key)
			sub.handler(Event{Kind: EventError, Key: sub.key, Message: "Subscription rejected"})
		}
	case "":
		c.dispatchMessage(f)
	default:
		c.logger.Printf("CABLE_UNKNOWN_FRAME | type=%s", f.Type)
	}
}

func (c *Client) dispatchMessage(f frame) {
	if f.Identifier == "" || len(f.Message) == 0 {
		return
	}
	sub := c.lookup(f.Identifier)
	if sub == nil {
		if c.debug {
			c.logger.Printf("CABLE_DROPPED | identifier=%s", f.Identifier)
		}
		return
	}

	p, err := decodePayload(f.Message)
	if err != nil {
		c.logger.Printf("CABLE_BAD_MESSAGE | key=%s error=%v", sub.key, err)
		return
	}
	ev, ok := p.toEvent(sub.key)
	if !ok {
		c.logger.Printf("CABLE_UNKNOWN_TYPE | key=%s type=%s", sub.key, p.Type)
		return
	}
	if c.debug {
		c.logger.Printf("CABLE_EVENT | key=%s kind=%s bytes=%d", sub.key, ev.Kind, len(ev.Content))
	}
	sub.handler(ev)
}

// handleLoss tears down the subscriptions of a transport that failed while
// still current. A transport closed by Disconnect is not a loss.
func (c *Client) handleLoss(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	subs := make([]*subscription, 0, len(c.subs))
	for key := range c.subs {
		subs = append(subs, c.removeLocked(key))
	}
	onLost := c.onLost
	c.mu.Unlock()

	conn.Close()
	c.logger.Printf("CABLE_CONNECTION_LOST | url=%s subscriptions=%d error=%v", c.url, len(subs), cause)

	for _, sub := range subs {
		sub.handler(Event{Kind: EventDisconnected, Key: sub.key})
	}
	if onLost != nil {
		onLost(cause)
	}
}
