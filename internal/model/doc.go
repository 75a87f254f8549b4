// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages and
// per-model streaming state.
//
// # Key Types
//
//   - Conversation: ordered transcript plus the models participating in it
//   - Message: a single user or assistant message, immutable once materialized
//   - StreamingState: the in-flight status and buffer of one model
//   - ModelInfo: catalog entry for a selectable model
//
// # Usage
//
//	conv := model.NewConversation("42", model.DefaultTitle, []string{"gpt-4o"}, now, now)
//	conv.AddMessage(model.NewUserMessage("42", "m1", "Hello!"))
//
//	state := model.NewStreamingState()
//	state.Status = model.StatusConnecting
package model
