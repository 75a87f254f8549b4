// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cabletest provides an in-memory transport for exercising cable
// clients without a server.
package cabletest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/chatsapp/internal/cable"
)

// ErrClosed is returned by a closed Conn.
var ErrClosed = errors.New("cabletest: connection closed")

// Command is an outbound client command as seen by the server.
type Command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

// =============================================================================
// CONN
// =============================================================================

// Conn is an in-memory cable.Conn. Frames pushed by the test are returned
// from ReadMessage in order.
type Conn struct {
	inbound   chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent []Command
}

// NewConn creates an open Conn.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 1024),
		closeCh: make(chan struct{}),
	}
}

// ReadMessage implements cable.Conn.
func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closeCh:
		return nil, ErrClosed
	default:
	}
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closeCh:
		return nil, ErrClosed
	}
}

// WriteMessage implements cable.Conn.
func (c *Conn) WriteMessage(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()
	return nil
}

// Close implements cable.Conn. Closing simulates transport loss when the
// client did not initiate it.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Sent returns every command written so far.
func (c *Conn) Sent() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.sent...)
}

// WaitSent blocks until at least n commands were written or timeout passes.
func (c *Conn) WaitSent(n int, timeout time.Duration) []Command {
	deadline := time.Now().Add(timeout)
	for {
		sent := c.Sent()
		if len(sent) >= n || time.Now().After(deadline) {
			return sent
		}
		time.Sleep(time.Millisecond)
	}
}

// Push queues a raw frame.
func (c *Conn) Push(data []byte) {
	c.inbound <- data
}

// PushJSON queues v encoded as JSON.
func (c *Conn) PushJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.Push(data)
}

// Welcome queues the server greeting.
func (c *Conn) Welcome() {
	c.PushJSON(map[string]string{"type": "welcome"})
}

// Confirm queues the confirmation of an exchange's subscription.
func (c *Conn) Confirm(conversationID, exchangeID string) {
	c.PushJSON(map[string]string{
		"type":       "confirm_subscription",
		"identifier": cable.Identifier(conversationID, exchangeID),
	})
}

// Reject queues the rejection of an exchange's subscription.
func (c *Conn) Reject(conversationID, exchangeID string) {
	c.PushJSON(map[string]string{
		"type":       "reject_subscription",
		"identifier": cable.Identifier(conversationID, exchangeID),
	})
}

// Message queues a channel message for an exchange.
func (c *Conn) Message(conversationID, exchangeID string, message interface{}) {
	c.PushJSON(map[string]interface{}{
		"identifier": cable.Identifier(conversationID, exchangeID),
		"message":    message,
	})
}

// Token queues a token frame.
func (c *Conn) Token(conversationID, exchangeID, content string) {
	c.Message(conversationID, exchangeID, map[string]string{"type": "token", "content": content})
}

// Complete queues a message_complete frame.
func (c *Conn) Complete(conversationID, exchangeID, content string) {
	c.Message(conversationID, exchangeID, map[string]string{"type": "message_complete", "content": content})
}

// Error queues an error frame.
func (c *Conn) Error(conversationID, exchangeID, message string) {
	c.Message(conversationID, exchangeID, map[string]string{"type": "error", "message": message})
}

// =============================================================================
// DIALER
// =============================================================================

// Dialer hands out Conns and records every dial.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	err   error
	fails int
}

// NewDialer creates a Dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements cable.Dialer.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (cable.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fails > 0 {
		d.fails--
		d.conns = append(d.conns, nil)
		return nil, errors.New("cabletest: dial refused")
	}
	if d.err != nil {
		d.conns = append(d.conns, nil)
		return nil, d.err
	}
	conn := NewConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

// FailNext makes the next n dials fail.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	d.fails = n
	d.mu.Unlock()
}

// SetError makes every dial fail with err (nil restores success).
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Dials returns how many dials were attempted.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Last returns the most recent successful Conn, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.conns) - 1; i >= 0; i-- {
		if d.conns[i] != nil {
			return d.conns[i]
		}
	}
	return nil
}
