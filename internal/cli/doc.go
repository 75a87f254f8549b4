// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatsapp command line.
//
// # Key Types
//
//   - App: loaded configuration plus the output streams commands write to
//   - Runtime: the wired gateway, channel, store and coordinator of one run
//
// # Usage
//
//	root := cli.NewRootCmd(version)
//	if err := root.Execute(); err != nil {
//	    os.Exit(1)
//	}
//
// # Commands
//
//   - chat: interactive session (full-screen when stdout is a terminal)
//   - ask: one-shot turn against every selected model
//   - conversations: list or show conversations, remote or archived
//   - config: show, get, set and locate the configuration file
package cli
