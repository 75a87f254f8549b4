// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cable is a client for the backend's ActionCable streaming channel.
//
// One Client owns one websocket connection and multiplexes any number of
// per-exchange subscriptions over it. Inbound frames are decoded into typed
// Events and handed to the subscription's Handler on the connection's read
// goroutine, so events for one subscription are always delivered in order.
//
// # Key Types
//
//   - Client: connection and subscription registry
//   - Event: a decoded streaming event (token, status, complete, ...)
//   - Dialer, Conn: transport abstraction; WebSocketDialer is the real one
//
// # Usage
//
//	client := cable.NewClient("ws://localhost:3200/cable", cable.NewWebSocketDialer())
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	key, err := client.Subscribe(conversationID, exchangeID, func(ev cable.Event) {
//	    if ev.Kind == cable.EventToken {
//	        fmt.Print(ev.Content)
//	    }
//	})
//	defer client.Unsubscribe(key)
package cable
