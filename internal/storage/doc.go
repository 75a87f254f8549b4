// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local SQLite archive of conversations.
//
// The archive keeps a durable copy of every conversation the client has seen,
// including conversations created while the backend was unreachable. It is a
// write-through sink of the transcript store and is read back at start-up.
//
// # Key Types
//
//   - Archive: SQLite-backed conversation archive
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	archive, err := storage.Open(path)
//	err = archive.Save(ctx, conv)
//	metas, err := archive.List(ctx)
//	conv, err := archive.Get(ctx, metas[0].ID)
//
// # Storage Location
//
// The default database is ~/.chatsapp/archive.db.
package storage
