// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives streamed model responses into the transcript store.
//
// A Coordinator owns every model's streaming state. Starting an exchange
// resets the state of each participating model, asks the backend to begin
// generating, and subscribes to the exchange's stream. One stream is fanned
// out to every attached model. When the stream completes, exactly one
// assistant message per model is appended to the conversation.
//
// # Key Types
//
//   - Coordinator: the per-model streaming state machine
//   - Reconnector: exponential-backoff transport reconnection
//   - Backoff: reconnection delay policy
//
// # Usage
//
//	coord := session.New(st, gw, channel, session.WithClearDelay(100*time.Millisecond))
//	defer coord.Close()
//	res, err := coord.SendTurn(ctx, convID, "Hi", []string{"gpt-4o"})
//	coord.StopStreaming("gpt-4o")
//
// # State Machine
//
// Per model: disconnected → connecting → connected → generating, ending in
// complete, error, or disconnected. A model is attached to at most one
// exchange; events from an exchange that no longer owns a model are ignored
// for that model.
package session
