// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/util"
)

// ErrConversationNotFound is returned when a conversation is not archived.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Models       []string  `json:"models"`
	Local        bool      `json:"local"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"` // First user message truncated
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is a SQLite-backed conversation archive.
type Archive struct {
	db *sql.DB

	// MaxConversations limits archived conversations (0 = unlimited).
	MaxConversations int
}

// DefaultPath returns ~/.chatsapp/archive.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home directory")
	}
	return filepath.Join(home, ".chatsapp", "archive.db"), nil
}

// Open opens (creating if needed) the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "creating archive directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "setting %q", pragma)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}

	return &Archive{db: db, MaxConversations: 500}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Save writes the full conversation, replacing any previous copy.
func (a *Archive) Save(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation has no id")
	}

	models, err := json.Marshal(conv.Models)
	if err != nil {
		return errors.Wrap(err, "marshaling models")
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, models, local, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			models = excluded.models,
			local = excluded.local,
			updated_at = excluded.updated_at
	`, conv.ID, conv.Title, string(models), boolToInt(conv.Local),
		conv.CreatedAt.UnixMicro(), conv.UpdatedAt.UnixMicro())
	if err != nil {
		return errors.Wrap(err, "writing conversation")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return errors.Wrap(err, "clearing messages")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, content, model_id, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "preparing message insert")
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		var meta sql.NullString
		if msg.Metadata != nil {
			data, err := json.Marshal(msg.Metadata)
			if err != nil {
				return errors.Wrapf(err, "marshaling metadata of %s", msg.ID)
			}
			meta = sql.NullString{String: string(data), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, conv.ID, i, msg.ID, string(msg.Role), msg.Content,
			msg.ModelID, msg.Timestamp.UnixMicro(), meta)
		if err != nil {
			return errors.Wrapf(err, "writing message %s", msg.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing conversation")
	}

	if a.MaxConversations > 0 {
		if err := a.enforceLimit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a conversation by ID.
func (a *Archive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// enforceLimit removes the oldest conversations beyond MaxConversations.
func (a *Archive) enforceLimit(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)
	`, a.MaxConversations)
	return errors.Wrap(err, "enforcing conversation limit")
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Get loads one conversation with all of its messages.
func (a *Archive) Get(ctx context.Context, id string) (*model.Conversation, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, title, models, local, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}

	if err := a.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// LoadAll loads every archived conversation, most recent first.
func (a *Archive) LoadAll(ctx context.Context) ([]*model.Conversation, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, title, models, local, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning conversation row")
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterating conversation rows")
	}
	rows.Close()

	for _, conv := range convs {
		if err := a.loadMessages(ctx, conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// List returns metadata for all archived conversations, most recent first.
func (a *Archive) List(ctx context.Context) ([]ConversationMeta, error) {
	return a.queryMeta(ctx, "", nil)
}

// Search returns conversations whose title or any message contains query
// (case-insensitive).
func (a *Archive) Search(ctx context.Context, query string) ([]ConversationMeta, error) {
	if strings.TrimSpace(query) == "" {
		return a.List(ctx)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	where := `WHERE lower(c.title) LIKE ? ESCAPE '\' OR EXISTS (
		SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND lower(m.content) LIKE ? ESCAPE '\'
	)`
	return a.queryMeta(ctx, where, []any{pattern, pattern})
}

func (a *Archive) queryMeta(ctx context.Context, where string, args []any) ([]ConversationMeta, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.models, c.local, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
			COALESCE((SELECT m.content FROM messages m
				WHERE m.conversation_id = c.id AND m.role = 'user'
				ORDER BY m.seq LIMIT 1), '')
		FROM conversations c `+where+`
		ORDER BY c.updated_at DESC
	`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversation metadata")
	}
	defer rows.Close()

	metas := []ConversationMeta{}
	for rows.Next() {
		var (
			meta             ConversationMeta
			models           string
			local            int
			created, updated int64
			preview          string
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &models, &local, &created, &updated,
			&meta.MessageCount, &preview); err != nil {
			return nil, errors.Wrap(err, "scanning metadata row")
		}
		if err := json.Unmarshal([]byte(models), &meta.Models); err != nil {
			return nil, errors.Wrap(err, "unmarshaling models")
		}
		meta.Local = local != 0
		meta.CreatedAt = time.UnixMicro(created)
		meta.UpdatedAt = time.UnixMicro(updated)
		meta.Preview = util.TruncateRunes(util.FirstLine(preview), 80)
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating metadata rows")
	}
	return metas, nil
}

func (a *Archive) loadMessages(ctx context.Context, conv *model.Conversation) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, role, content, model_id, timestamp, metadata
		FROM messages WHERE conversation_id = ? ORDER BY seq
	`, conv.ID)
	if err != nil {
		return errors.Wrapf(err, "querying messages of %s", conv.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg  = &model.Message{ConversationID: conv.ID}
			role string
			ts   int64
			meta sql.NullString
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.ModelID, &ts, &meta); err != nil {
			return errors.Wrap(err, "scanning message row")
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.UnixMicro(ts)
		if meta.Valid {
			msg.Metadata = &model.MessageMetadata{}
			if err := json.Unmarshal([]byte(meta.String), msg.Metadata); err != nil {
				return errors.Wrapf(err, "unmarshaling metadata of %s", msg.ID)
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return errors.Wrap(rows.Err(), "iterating message rows")
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*model.Conversation, error) {
	var (
		id, title, models string
		local             int
		created, updated  int64
	)
	if err := s.Scan(&id, &title, &models, &local, &created, &updated); err != nil {
		return nil, err
	}
	var modelIDs []string
	if err := json.Unmarshal([]byte(models), &modelIDs); err != nil {
		return nil, errors.Wrap(err, "unmarshaling models")
	}
	conv := model.NewConversation(id, title, modelIDs, time.UnixMicro(created), time.UnixMicro(updated))
	conv.Local = local != 0
	return conv, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
