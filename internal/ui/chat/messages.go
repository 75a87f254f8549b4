// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/chatsapp/internal/store"

// storeChangedMsg signals that the store changed since the last render.
type storeChangedMsg struct{}

// watchClosedMsg signals that the store stopped delivering changes.
type watchClosedMsg struct{}

// conversationCreatedMsg carries the result of /new or a first turn.
type conversationCreatedMsg struct {
	Result store.PersistResult
	Err    error
	// Pending is sent as the first turn once the conversation exists.
	Pending string
}

// turnSentMsg carries the result of SendTurn.
type turnSentMsg struct {
	Result store.PersistResult
	Err    error
}
