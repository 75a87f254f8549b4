// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// errAllFailed is returned when no model produced a reply.
var errAllFailed = errors.New("every model failed")

func newAskCmd(a *App) *cobra.Command {
	var opts struct {
		Models  string
		Timeout time.Duration
		Raw     bool
	}
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one message and print every model's reply",
		Example: `  chatsapp ask "What is a goroutine?"
  chatsapp ask -m gpt-4o,gemini-pro "Compare TCP and QUIC"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			return a.runAsk(ctx, strings.Join(args, " "), splitList(opts.Models), !opts.Raw)
		},
	}
	cmd.Flags().StringVarP(&opts.Models, "models", "m", "", "comma separated models (default from config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "give up after this long (0 = never)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print replies without markdown rendering")
	return cmd
}

func (a *App) runAsk(ctx context.Context, prompt string, models []string, markdown bool) error {
	rt, err := a.Open(ctx, models)
	if err != nil {
		return err
	}
	defer rt.Close()

	ids := rt.Store.SelectedModels()
	if err := validateModels(rt.Store, ids); err != nil {
		return err
	}

	conv, err := rt.Coordinator.CreateConversation(ctx, ids)
	if err != nil {
		return err
	}
	if conv.Degraded() {
		fmt.Fprintf(a.Err, "Warning: backend unreachable, conversation kept locally: %v\n", conv.Reason)
	}

	turn, err := rt.Coordinator.SendTurn(ctx, conv.ID, prompt, ids)
	if turn.ID == "" {
		return err
	}
	// A failed stream start leaves every model in the error state; the
	// replies below report it.
	if err == nil {
		if werr := waitForTurn(ctx, rt.Store, ids); werr != nil {
			rt.Coordinator.StopAll()
			return werr
		}
	}

	replies := collectReplies(rt.Store, conv.ID, turn.ID, ids)
	theme := plainTheme(a.Out, a.Config.UI.Theme)
	newReplyPrinter(a.Out, theme, markdown && a.Config.UI.Markdown).print(replies)
	if failed(replies) {
		return errAllFailed
	}
	return nil
}

// splitList splits a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
