// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds conversations, messages and per-model streaming state.
//
// The store is the single owner of conversation and message lifetime. It
// persists through a Gateway and falls back to local-only records when the
// backend cannot be reached, reporting which of the two happened in a
// PersistResult. Every read returns a deep copy.
//
// # Key Types
//
//   - Store: the transcript container
//   - PersistResult: outcome of a create operation (Persisted or LocalFallback)
//   - MessagePatch, StreamingPatch: partial updates
//
// # Usage
//
//	st := store.New(gw, store.WithArchive(archive))
//	defer st.Close()
//	res, err := st.CreateConversation(ctx, []string{"gpt-4o"})
//	msg, err := st.AddMessage(ctx, res.ID, model.Draft{Role: model.RoleUser, Content: "Hi"})
//	changes, cancel := st.Watch()
package store
