// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The view never mutates conversations or streaming state itself. It
// renders the store's read projections, re-rendering whenever the store
// reports a change, and turns user input into coordinator operations.
//
// # Key Types
//
//   - Model: the Bubble Tea model
//   - Options: dependencies and display settings
//
// # Keys
//
//	Enter      send the input (or run a /command)
//	Esc        stop every stream
//	PgUp/PgDn  scroll the transcript
//	Ctrl+C     quit
//
// # Commands
//
//	/new                start a new conversation
//	/models [a,b]       show or set the models of the next turn
//	/stop [model]       stop one model or all of them
//	/help               list commands
//	/quit               exit
package chat
