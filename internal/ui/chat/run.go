// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the chat view until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Theme != nil {
		opts.Theme.Apply()
	}
	m, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer m.stopWatch()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
