// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatsapp/internal/gateway"
	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/storage"
)

func newConversationsCmd(a *App) *cobra.Command {
	var opts struct {
		Local  bool
		Search string
		JSON   bool
	}
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs", "ls"},
		Short:   "List conversations from the backend or the local archive",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metas, err := a.listConversations(cmd.Context(), opts.Local, opts.Search)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd, metas)
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.FormatConversationList(metas))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Local, "local", "l", false, "list the local archive instead of the backend")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "only conversations whose title or messages contain this text")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON")

	cmd.AddCommand(newConversationShowCmd(a))
	return cmd
}

func newConversationShowCmd(a *App) *cobra.Command {
	var opts struct {
		Local bool
		JSON  bool
	}
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one conversation as Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.findConversation(cmd.Context(), args[0], opts.Local)
			if err != nil {
				return err
			}
			if opts.JSON {
				data, err := storage.ExportJSON(conv)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.ExportMarkdown(conv))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Local, "local", "l", false, "only look in the local archive")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON")
	return cmd
}

func (a *App) listConversations(ctx context.Context, local bool, search string) ([]storage.ConversationMeta, error) {
	if local {
		archive, err := a.openArchive()
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		return archive.Search(ctx, search)
	}

	convs, err := a.restClient().ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	metas := make([]storage.ConversationMeta, 0, len(convs))
	query := strings.ToLower(strings.TrimSpace(search))
	for _, conv := range convs {
		if query != "" && !strings.Contains(strings.ToLower(conv.Title), query) {
			continue
		}
		metas = append(metas, metaFor(conv))
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// findConversation looks in the archive first and then asks the backend.
func (a *App) findConversation(ctx context.Context, id string, localOnly bool) (*model.Conversation, error) {
	if a.Config.Storage.Enabled || localOnly {
		archive, err := a.openArchive()
		if err != nil {
			return nil, err
		}
		conv, err := archive.Get(ctx, id)
		archive.Close()
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrConversationNotFound) || localOnly {
			return nil, err
		}
	}

	conv, err := a.restClient().GetConversation(ctx, id)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrConversationNotFound)
		}
		return nil, err
	}
	return conv, nil
}

// restClient builds a REST client without the streaming stack.
func (a *App) restClient() *gateway.Client {
	cfg := a.Config
	return gateway.NewClient(cfg.API.BaseURL).
		WithToken(cfg.API.Token).
		WithTimeout(cfg.API.Timeout()).
		WithLogger(a.logger, cfg.Debug)
}

func metaFor(conv *model.Conversation) storage.ConversationMeta {
	meta := storage.ConversationMeta{
		ID:           conv.ID,
		Title:        conv.Title,
		Models:       conv.Models,
		Local:        conv.Local,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: len(conv.Messages),
	}
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleUser {
			meta.Preview = msg.Preview(60)
			break
		}
	}
	return meta
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
