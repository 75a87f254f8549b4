// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/storage"
)

var (
	// ErrNoModels is returned when a conversation is created without models.
	ErrNoModels = errors.New("store: at least one model is required")

	// ErrConversationNotFound is returned for unknown conversation ids.
	ErrConversationNotFound = storage.ErrConversationNotFound

	// ErrLocalConversation is the fallback reason for messages added to a
	// conversation the backend has never seen.
	ErrLocalConversation = errors.New("store: conversation exists only locally")

	// ErrNoGateway is the fallback reason when the store runs offline.
	ErrNoGateway = errors.New("store: no backend configured")
)

// Gateway persists conversations and messages on the backend.
type Gateway interface {
	CreateConversation(ctx context.Context, title string, modelIDs []string) (*model.Conversation, error)
	CreateMessage(ctx context.Context, conversationID, content string, role model.Role) (*model.Message, error)
}

// Archiver is the durable local sink for conversations.
type Archiver interface {
	Save(ctx context.Context, conv *model.Conversation) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*model.Conversation, error)
}

// =============================================================================
// PERSIST RESULT
// =============================================================================

// Outcome tells whether a record reached the backend.
type Outcome int

const (
	// Persisted means the backend accepted the record and assigned its id.
	Persisted Outcome = iota
	// LocalFallback means the record only exists locally.
	LocalFallback
)

func (o Outcome) String() string {
	if o == LocalFallback {
		return "local"
	}
	return "persisted"
}

// PersistResult is the result of a create operation.
type PersistResult struct {
	ID      string
	Outcome Outcome
	// Reason is the failure that forced a LocalFallback.
	Reason error
}

// Degraded reports whether the record is local only.
func (r PersistResult) Degraded() bool {
	return r.Outcome == LocalFallback
}

// =============================================================================
// STORE
// =============================================================================

// Store is the transcript container. It is safe for concurrent use.
type Store struct {
	gw        Gateway
	archive   Archiver
	archiveMu sync.Mutex
	logger    *log.Logger

	mu            sync.RWMutex
	conversations []*model.Conversation // most recently created first
	activeID      string
	streaming     map[string]*model.StreamingState
	selected      []string
	available     []model.ModelInfo
	watchers      map[int]chan struct{}
	nextWatcher   int
	closed        bool
}

// Option configures a Store.
type Option func(*Store)

// WithArchive writes every conversation through to a.
func WithArchive(a Archiver) Option {
	return func(s *Store) { s.archive = a }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithModels replaces the model catalog.
func WithModels(models []model.ModelInfo) Option {
	return func(s *Store) {
		s.available = cloneModels(models)
	}
}

// WithSelectedModels sets the initially selected models.
func WithSelectedModels(ids []string) Option {
	return func(s *Store) {
		s.selected = append([]string(nil), ids...)
	}
}

// New creates a store. gw may be nil, in which case every create falls
// back to a local record.
func New(gw Gateway, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		logger:    log.Default(),
		streaming: make(map[string]*model.StreamingState),
		selected:  model.DefaultSelectedModels(),
		available: model.DefaultModels(),
		watchers:  make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load merges the archived conversations into the store.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	convs, err := s.archive.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading archive: %w", err)
	}

	s.mu.Lock()
	loaded := 0
	for _, conv := range convs {
		if s.findLocked(conv.ID) != nil {
			continue
		}
		s.conversations = append(s.conversations, conv)
		loaded++
	}
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})
	s.mu.Unlock()

	s.logger.Printf("STORE_LOADED | conversations=%d", loaded)
	s.notify()
	return loaded, nil
}

// Close releases every watcher. The archive is left open for its owner.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation creates a conversation for modelIDs and makes it active.
// When the backend rejects the request a local conversation is created
// instead and the result reports LocalFallback.
func (s *Store) CreateConversation(ctx context.Context, modelIDs []string) (PersistResult, error) {
	ids := dedupe(modelIDs)
	if len(ids) == 0 {
		return PersistResult{}, ErrNoModels
	}

	var (
		conv   *model.Conversation
		result PersistResult
	)
	reason := ErrNoGateway
	if s.gw != nil {
		remote, err := s.gw.CreateConversation(ctx, model.DefaultTitle, ids)
		if err == nil && remote != nil && remote.ID != "" {
			conv = remote
			if len(conv.Models) == 0 {
				conv.Models = append([]string(nil), ids...)
			}
			if conv.Title == "" {
				conv.Title = model.DefaultTitle
			}
			if conv.Messages == nil {
				conv.Messages = make([]*model.Message, 0)
			}
			result = PersistResult{ID: conv.ID, Outcome: Persisted}
		} else {
			if err == nil {
				err = errors.New("backend returned no conversation id")
			}
			reason = err
		}
	}
	if conv == nil {
		now := time.Now()
		conv = model.NewConversation(uuid.NewString(), model.LocalTitle, ids, now, now)
		conv.Local = true
		result = PersistResult{ID: conv.ID, Outcome: LocalFallback, Reason: reason}
		s.logger.Printf("STORE_LOCAL_CONVERSATION | id=%s reason=%v", conv.ID, reason)
	}

	s.mu.Lock()
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.selected = append([]string(nil), ids...)
	for _, id := range ids {
		st := model.NewStreamingState()
		s.streaming[id] = &st
	}
	s.mu.Unlock()

	s.logger.Printf("STORE_CONVERSATION_CREATED | id=%s models=%d outcome=%s", conv.ID, len(ids), result.Outcome)
	s.persist(conv.ID)
	s.notify()
	return result, nil
}

// DeleteConversation removes a conversation. It reports whether one existed.
func (s *Store) DeleteConversation(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()

	if s.archive != nil {
		s.archiveMu.Lock()
		if err := s.archive.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			s.logger.Printf("STORE_ARCHIVE_FAILED | id=%s op=delete error=%v", id, err)
		}
		s.archiveMu.Unlock()
	}
	s.notify()
	return true
}

// SetActiveConversation selects the conversation shown to the user.
// An empty id clears the selection.
func (s *Store) SetActiveConversation(id string) error {
	s.mu.Lock()
	if id != "" && s.findLocked(id) == nil {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	s.activeID = id
	s.mu.Unlock()
	s.notify()
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage persists draft and appends the canonical message. When the
// backend cannot take it the message is appended under a local id.
func (s *Store) AddMessage(ctx context.Context, conversationID string, draft model.Draft) (PersistResult, error) {
	if draft.Role == "" {
		draft.Role = model.RoleUser
	}
	if !draft.Role.Valid() {
		return PersistResult{}, fmt.Errorf("store: invalid role %q", draft.Role)
	}

	s.mu.RLock()
	conv := s.findLocked(conversationID)
	local := conv != nil && conv.Local
	s.mu.RUnlock()
	if conv == nil {
		return PersistResult{}, ErrConversationNotFound
	}

	var (
		msg    *model.Message
		result PersistResult
	)
	reason := ErrNoGateway
	switch {
	case local:
		reason = ErrLocalConversation
	case s.gw != nil:
		remote, err := s.gw.CreateMessage(ctx, conversationID, draft.Content, draft.Role)
		if err == nil && remote != nil && remote.ID != "" {
			msg = remote
			result = PersistResult{ID: msg.ID, Outcome: Persisted}
		} else {
			if err == nil {
				err = errors.New("backend returned no message id")
			}
			reason = err
		}
	}

	if msg == nil {
		msg = &model.Message{ID: uuid.NewString()}
		result = PersistResult{ID: msg.ID, Outcome: LocalFallback, Reason: reason}
		if !local {
			s.logger.Printf("STORE_LOCAL_MESSAGE | conversation=%s id=%s reason=%v", conversationID, msg.ID, reason)
		}
	}
	fillFromDraft(msg, conversationID, draft)

	if !s.AppendMessage(conversationID, msg) {
		// Deleted while the request was in flight.
		return PersistResult{}, ErrConversationNotFound
	}
	return result, nil
}

// AppendMessage appends an already identified message without contacting
// the backend and writes the conversation to the archive. It reports
// whether the conversation exists.
func (s *Store) AppendMessage(conversationID string, msg *model.Message) bool {
	if !s.StageMessage(conversationID, msg) {
		return false
	}
	s.Persist(conversationID)
	return true
}

// StageMessage appends msg in memory only. The archive copy is written by
// a later Persist.
func (s *Store) StageMessage(conversationID string, msg *model.Message) bool {
	if msg == nil {
		return false
	}
	s.mu.Lock()
	conv := s.findLocked(conversationID)
	if conv == nil {
		s.mu.Unlock()
		return false
	}
	m := msg.Clone()
	m.ConversationID = conversationID
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	conv.AddMessage(m)
	s.mu.Unlock()

	s.notify()
	return true
}

// Persist writes the current copy of a conversation to the archive. It is
// a no-op without an archive or for an unknown conversation.
func (s *Store) Persist(conversationID string) {
	s.persist(conversationID)
}

// MessagePatch is a partial message update. Nil fields are left unchanged.
type MessagePatch struct {
	Content     *string
	IsStreaming *bool
	Metadata    *model.MessageMetadata
}

// UpdateMessage merges patch into a message. A missing conversation or
// message is not an error; the result reports whether anything matched.
// A patch that would set IsStreaming on a finished message leaves the
// flag unchanged.
func (s *Store) UpdateMessage(conversationID, messageID string, patch MessagePatch) bool {
	s.mu.Lock()
	conv := s.findLocked(conversationID)
	if conv == nil {
		s.mu.Unlock()
		return false
	}
	msg := conv.MessageByID(messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.IsStreaming != nil {
		if *patch.IsStreaming && !msg.IsStreaming {
			s.logger.Printf("STORE_REFUSED_RESTREAM | conversation=%s message=%s", conversationID, messageID)
		} else {
			msg.IsStreaming = *patch.IsStreaming
		}
	}
	if patch.Metadata != nil {
		meta := *patch.Metadata
		msg.Metadata = &meta
	}
	conv.Touch(time.Now())
	s.mu.Unlock()

	s.persist(conversationID)
	s.notify()
	return true
}

func fillFromDraft(msg *model.Message, conversationID string, draft model.Draft) {
	msg.ConversationID = conversationID
	if msg.Role == "" {
		msg.Role = draft.Role
	}
	if msg.Content == "" {
		msg.Content = draft.Content
	}
	if msg.ModelID == "" {
		msg.ModelID = draft.ModelID
	}
	if msg.Metadata == nil && draft.Metadata != nil {
		meta := *draft.Metadata
		msg.Metadata = &meta
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
}

// =============================================================================
// STREAMING STATE
// =============================================================================

// StreamingPatch is a partial streaming state update. Nil fields are left
// unchanged.
type StreamingPatch struct {
	IsStreaming    *bool
	Status         *model.StreamStatus
	CurrentMessage *string
	// Append is concatenated to the buffer after CurrentMessage is applied.
	Append       string
	MessageID    *string
	ConnectionID *string
	Error        *string

	// IfMessageID, when set, applies the patch only while the state still
	// belongs to that exchange.
	IfMessageID string
}

// UpdateStreamingState merges patch into modelID's state, creating a
// default state when none exists. It returns the resulting state and
// whether the patch was applied.
func (s *Store) UpdateStreamingState(modelID string, patch StreamingPatch) (model.StreamingState, bool) {
	s.mu.Lock()
	st, ok := s.streaming[modelID]
	if !ok {
		fresh := model.NewStreamingState()
		st = &fresh
		s.streaming[modelID] = st
	}
	if patch.IfMessageID != "" && st.MessageID != patch.IfMessageID {
		out := *st
		s.mu.Unlock()
		return out, false
	}

	if patch.IsStreaming != nil {
		st.IsStreaming = *patch.IsStreaming
	}
	if patch.Status != nil {
		st.Status = *patch.Status
	}
	if patch.CurrentMessage != nil {
		st.CurrentMessage = *patch.CurrentMessage
	}
	st.CurrentMessage += patch.Append
	if patch.MessageID != nil {
		st.MessageID = *patch.MessageID
	}
	if patch.ConnectionID != nil {
		st.ConnectionID = *patch.ConnectionID
	}
	if patch.Error != nil {
		st.Error = *patch.Error
	}
	st.Normalize()
	out := *st
	s.mu.Unlock()

	s.notify()
	return out, true
}

// ResetStreamingState replaces modelID's state outright.
func (s *Store) ResetStreamingState(modelID string, state model.StreamingState) {
	state.Normalize()
	s.mu.Lock()
	s.streaming[modelID] = &state
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// MODEL SELECTION
// =============================================================================

// AddModel selects a catalog model. Unknown or already selected models are
// ignored.
func (s *Store) AddModel(modelID string) bool {
	s.mu.Lock()
	if _, ok := model.FindModel(s.available, modelID); !ok || contains(s.selected, modelID) {
		s.mu.Unlock()
		return false
	}
	s.selected = append(s.selected, modelID)
	if _, ok := s.streaming[modelID]; !ok {
		st := model.NewStreamingState()
		s.streaming[modelID] = &st
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// RemoveModel deselects a model and drops its streaming state.
func (s *Store) RemoveModel(modelID string) bool {
	s.mu.Lock()
	idx := indexOf(s.selected, modelID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.selected = append(s.selected[:idx], s.selected[idx+1:]...)
	delete(s.streaming, modelID)
	s.mu.Unlock()
	s.notify()
	return true
}

// ToggleModel flips the catalog Enabled flag of a model.
func (s *Store) ToggleModel(modelID string) bool {
	s.mu.Lock()
	found := false
	for i := range s.available {
		if s.available[i].ID == modelID {
			s.available[i].Enabled = !s.available[i].Enabled
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// UpdateModelConfig replaces a model's generation parameters.
func (s *Store) UpdateModelConfig(modelID string, cfg model.ModelConfig) bool {
	s.mu.Lock()
	found := false
	for i := range s.available {
		if s.available[i].ID == modelID {
			c := cfg
			s.available[i].Config = &c
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// SetSelectedModels replaces the selection.
func (s *Store) SetSelectedModels(ids []string) {
	s.mu.Lock()
	s.selected = dedupe(ids)
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// READ PROJECTIONS
// =============================================================================

// Conversations returns every conversation, most recent first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Conversation returns a copy of one conversation.
func (s *Store) Conversation(id string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv := s.findLocked(id)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// ActiveConversationID returns the active conversation id, or "".
func (s *Store) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// ActiveConversation returns a copy of the active conversation, or nil.
func (s *Store) ActiveConversation() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.activeID).Clone()
}

// StreamingStates returns every model's streaming state.
func (s *Store) StreamingStates() map[string]model.StreamingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.StreamingState, len(s.streaming))
	for id, st := range s.streaming {
		out[id] = *st
	}
	return out
}

// StreamingState returns modelID's state, or the default state.
func (s *Store) StreamingState(modelID string) model.StreamingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.streaming[modelID]; ok {
		return *st
	}
	return model.NewStreamingState()
}

// SelectedModels returns the selected model ids in selection order.
func (s *Store) SelectedModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selected...)
}

// AvailableModels returns the model catalog.
func (s *Store) AvailableModels() []model.ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneModels(s.available)
}

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

// Watch returns a channel that receives a value after changes. Bursts of
// changes are coalesced into one notification. cancel stops delivery and
// closes the channel.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
		})
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// persist writes the current copy of a conversation to the archive.
// Writes are serialized so the last write always carries the newest copy.
func (s *Store) persist(id string) {
	if s.archive == nil {
		return
	}
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	s.mu.RLock()
	conv := s.findLocked(id).Clone()
	s.mu.RUnlock()
	if conv == nil {
		return
	}
	if err := s.archive.Save(context.Background(), conv); err != nil {
		s.logger.Printf("STORE_ARCHIVE_FAILED | id=%s op=save error=%v", id, err)
	}
}

func (s *Store) findLocked(id string) *model.Conversation {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.conversations[idx]
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func cloneModels(models []model.ModelInfo) []model.ModelInfo {
	out := make([]model.ModelInfo, len(models))
	for i, m := range models {
		out[i] = m.Clone()
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	return indexOf(ids, id) >= 0
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
