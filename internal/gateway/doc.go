// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the REST client for the chat backend.
//
// The backend owns conversations, messages and generation. This package
// creates conversations and messages, asks the backend to begin streaming an
// exchange, and reads conversation history back. Every failure is reported as
// an *APIError carrying the HTTP status (0 for transport failures).
//
// # Usage
//
//	client := gateway.NewClient("http://localhost:3200/api/v1").
//	    WithTimeout(30 * time.Second).
//	    WithRateLimit(10, 5)
//
//	conv, err := client.CreateConversation(ctx, "New Conversation", []string{"gpt-4o"})
//	msg, err := client.CreateMessage(ctx, conv.ID, "Hello", model.RoleUser)
//	init, err := client.InitializeStream(ctx, conv.ID, msg.ID)
package gateway
