// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatsapp/internal/config"
	"github.com/jeranaias/chatsapp/internal/ui/chat"
	"github.com/jeranaias/chatsapp/internal/ui/styles"
)

// configDebounce collapses editor write bursts on the config file.
const configDebounce = 250 * time.Millisecond

const replHelp = `Commands:
  /new              start a new conversation
  /models [a,b]     show or set the models for the next message
  /help             show this help
  /quit             exit
Ctrl+C while a reply streams stops it.`

func newChatCmd(a *App) *cobra.Command {
	var opts struct {
		Models         string
		Plain          bool
		ConversationID string
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: "Start an interactive chat session. Every message goes to all selected models and " +
			"their replies stream side by side. Without a terminal, or with --plain, a line " +
			"oriented prompt is used instead of the full-screen view.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models := splitList(opts.Models)
			plain := opts.Plain || !isTerminal(a.Out)
			if !plain && a.Config.Debug {
				// The full-screen view owns stderr; debug output goes to a file.
				if err := a.logToFile(); err != nil {
					return err
				}
			}

			rt, err := a.Open(cmd.Context(), models)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := validateModels(rt.Store, rt.Store.SelectedModels()); err != nil {
				return err
			}
			if opts.ConversationID != "" {
				if err := rt.Store.SetActiveConversation(opts.ConversationID); err != nil {
					return fmt.Errorf("conversation %s: %w", opts.ConversationID, err)
				}
			}

			if w := a.watchConfig(rt, len(models) == 0); w != nil {
				defer w.Close()
			}

			if plain {
				var in lineReader
				if f, ok := a.In.(*os.File); ok && f == os.Stdin {
					in = NewChatCLI()
				} else {
					in = newScanReader(a.In, a.Out)
				}
				defer in.Close()
				return a.runREPL(cmd.Context(), rt, in)
			}

			theme := styles.NewTheme(a.Config.UI.Theme)
			return chat.Run(cmd.Context(), chat.Options{
				Store:          rt.Store,
				Coordinator:    rt.Coordinator,
				Theme:          theme,
				ConversationID: opts.ConversationID,
				Markdown:       a.Config.UI.Markdown,
				ShowTimestamps: a.Config.UI.ShowTimestamps,
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Models, "models", "m", "", "comma separated models (default from config)")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "use the line oriented prompt instead of the full-screen view")
	cmd.Flags().StringVarP(&opts.ConversationID, "conversation", "c", "", "resume an archived conversation")
	return cmd
}

// logToFile sends debug logging to debug.log in the config directory.
func (a *App) logToFile() error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if _, err := tea.LogToFile(filepath.Join(dir, "debug.log"), "chatsapp"); err != nil {
		return fmt.Errorf("opening debug log: %w", err)
	}
	a.logger = log.Default()
	return nil
}

// watchConfig reloads the config file while the session runs. When
// followModels is set, a changed model list applies to the next message.
func (a *App) watchConfig(rt *Runtime, followModels bool) *config.Watcher {
	if _, err := os.Stat(a.path); err != nil {
		return nil
	}
	w, err := config.NewWatcher(a.path, configDebounce, a.logger, func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", a.path, err)
			return
		}
		config.SetGlobal(cfg)
		if followModels && len(cfg.Session.Models) > 0 {
			rt.Store.SetSelectedModels(cfg.Session.Models)
		}
		a.logger.Printf("CONFIG_RELOADED | path=%s models=%s", a.path, strings.Join(cfg.Session.Models, ","))
	})
	if err != nil {
		a.logger.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		return nil
	}
	if err := w.Watch(); err != nil {
		a.logger.Printf("CONFIG_WATCH_FAILED | error=%v", err)
		w.Close()
		return nil
	}
	return w
}

// =============================================================================
// PLAIN MODE
// =============================================================================

func (a *App) runREPL(ctx context.Context, rt *Runtime, in lineReader) error {
	theme := plainTheme(a.Out, a.Config.UI.Theme)
	printer := newReplyPrinter(a.Out, theme, a.Config.UI.Markdown)

	title := "new conversation"
	if conv := rt.Store.ActiveConversation(); conv != nil {
		title = conv.Title
	}
	fmt.Fprintln(a.Out, banner(theme, "chatsapp", title+" with "+strings.Join(rt.Store.SelectedModels(), ", ")))
	fmt.Fprintln(a.Out, theme.Notice.Render("Type /help for commands."))

	for {
		line, err := in.ReadInput("> ")
		if errors.Is(err, io.EOF) || errors.Is(err, errAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			quit, err := a.replCommand(ctx, rt, text)
			if err != nil {
				fmt.Fprintln(a.Out, theme.Error.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		replies, err := a.replTurn(ctx, rt, text)
		if err != nil && replies == nil {
			fmt.Fprintln(a.Out, theme.Error.Render(err.Error()))
			continue
		}
		printer.print(replies)
	}
}

// replTurn sends text and waits for every reply. Ctrl+C stops streaming
// without leaving the session.
func (a *App) replTurn(ctx context.Context, rt *Runtime, text string) ([]reply, error) {
	ids := rt.Store.SelectedModels()
	convID := rt.Store.ActiveConversationID()
	if convID == "" {
		res, err := rt.Coordinator.CreateConversation(ctx, ids)
		if err != nil {
			return nil, err
		}
		if res.Degraded() {
			fmt.Fprintf(a.Err, "Warning: backend unreachable, working locally: %v\n", res.Reason)
		}
		convID = res.ID
	}

	turn, err := rt.Coordinator.SendTurn(ctx, convID, text, ids)
	if turn.ID == "" {
		return nil, err
	}
	if err == nil {
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		werr := waitForTurn(turnCtx, rt.Store, ids)
		stop()
		if werr != nil {
			rt.Coordinator.StopAll()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}
	return collectReplies(rt.Store, convID, turn.ID, ids), nil
}

// replCommand runs a slash command and reports whether to quit.
func (a *App) replCommand(ctx context.Context, rt *Runtime, text string) (bool, error) {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		fmt.Fprintln(a.Out, replHelp)

	case "/new":
		res, err := rt.Coordinator.CreateConversation(ctx, rt.Store.SelectedModels())
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.Out, "Started conversation %s (%s)\n", res.ID, res.Outcome)

	case "/models":
		if len(fields) == 1 {
			fmt.Fprintln(a.Out, "Selected:", strings.Join(rt.Store.SelectedModels(), ", "))
			for _, info := range rt.Store.AvailableModels() {
				fmt.Fprintf(a.Out, "  %-20s %s (%s)\n", info.ID, info.Name, info.Provider)
			}
			return false, nil
		}
		ids := splitList(strings.Join(fields[1:], ","))
		if err := validateModels(rt.Store, ids); err != nil {
			return false, err
		}
		rt.Store.SetSelectedModels(ids)
		fmt.Fprintln(a.Out, "Next message goes to", strings.Join(ids, ", "))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}
