// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"log"
	"net/http"

	"github.com/jeranaias/chatsapp/internal/cable"
	"github.com/jeranaias/chatsapp/internal/gateway"
	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/session"
	"github.com/jeranaias/chatsapp/internal/storage"
	"github.com/jeranaias/chatsapp/internal/store"
)

// Runtime is one run's wired client stack.
type Runtime struct {
	Gateway     *gateway.Client
	Channel     *cable.Client
	Store       *store.Store
	Coordinator *session.Coordinator

	archive *storage.Archive
	logger  *log.Logger
}

// Open builds the client stack from the loaded configuration. models
// overrides the configured selection when not empty.
func (a *App) Open(ctx context.Context, models []string) (*Runtime, error) {
	cfg := a.Config
	logger := a.logger

	gw := gateway.NewClient(cfg.API.BaseURL).
		WithToken(cfg.API.Token).
		WithTimeout(cfg.API.Timeout()).
		WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst).
		WithLogger(logger, cfg.Debug)

	dialer := cable.NewWebSocketDialer()
	dialer.Origin = cfg.Cable.Origin
	if d := cfg.Cable.HandshakeTimeout(); d > 0 {
		dialer.HandshakeTimeout = d
	}
	if cfg.API.Token != "" {
		dialer.Header = http.Header{"Authorization": {"Bearer " + cfg.API.Token}}
	}
	channel := cable.NewClient(cfg.Cable.URL, dialer).WithLogger(logger, cfg.Debug)

	if len(models) == 0 {
		models = cfg.Session.Models
	}
	opts := []store.Option{store.WithLogger(logger)}
	if len(models) > 0 {
		opts = append(opts, store.WithSelectedModels(models))
	}

	rt := &Runtime{Gateway: gw, Channel: channel, logger: logger}
	if cfg.Storage.Enabled {
		archive, err := a.openArchive()
		if err != nil {
			return nil, err
		}
		rt.archive = archive
		opts = append(opts, store.WithArchive(archive))
	}

	rt.Store = store.New(gw, opts...)
	if _, err := rt.Store.Load(ctx); err != nil {
		logger.Printf("ARCHIVE_LOAD_FAILED | error=%v", err)
	}

	rt.Coordinator = session.New(rt.Store, gw, channel,
		session.WithLogger(logger, cfg.Debug),
		session.WithClearDelay(cfg.Session.ClearDelay()),
		session.WithBackoff(session.Backoff{
			Base:        cfg.Session.ReconnectBase(),
			Cap:         cfg.Session.ReconnectCap(),
			MaxAttempts: cfg.Session.ReconnectMaxAttempts,
		}),
	)
	return rt, nil
}

// openArchive opens the configured SQLite archive.
func (a *App) openArchive() (*storage.Archive, error) {
	path := a.Config.Storage.Path
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	archive, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	archive.MaxConversations = a.Config.Storage.MaxConversations
	return archive, nil
}

// Close stops every stream and releases the transport and the archive.
func (rt *Runtime) Close() {
	rt.Coordinator.Close()
	rt.Channel.Disconnect()
	rt.Store.Close()
	if rt.archive != nil {
		if err := rt.archive.Close(); err != nil {
			rt.logger.Printf("ARCHIVE_CLOSE_FAILED | error=%v", err)
		}
	}
}

// validateModels checks ids against the catalog.
func validateModels(st *store.Store, ids []string) error {
	available := st.AvailableModels()
	for _, id := range ids {
		if _, ok := model.FindModel(available, id); !ok {
			return &unknownModelError{id: id}
		}
	}
	return nil
}

type unknownModelError struct{ id string }

func (e *unknownModelError) Error() string {
	return "unknown model " + e.id
}
