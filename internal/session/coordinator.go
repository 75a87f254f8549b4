// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/chatsapp/internal/cable"
	"github.com/jeranaias/chatsapp/internal/gateway"
	"github.com/jeranaias/chatsapp/internal/model"
	"github.com/jeranaias/chatsapp/internal/store"
)

// DefaultClearDelay is how long a finished buffer stays visible next to the
// materialized message.
const DefaultClearDelay = 100 * time.Millisecond

// ErrClosed is returned after Close.
var ErrClosed = errors.New("session: coordinator closed")

// Gateway asks the backend to begin generating for an exchange.
type Gateway interface {
	InitializeStream(ctx context.Context, conversationID, exchangeID string) (*gateway.StreamInit, error)
}

// Channel is the streaming transport.
type Channel interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Subscribe(conversationID, exchangeID string, handler cable.Handler) (string, error)
	Unsubscribe(key string)
	UnsubscribeAll()
	OnConnectionLost(fn func(error))
}

// exchange is one in-flight generation and the models attached to it.
type exchange struct {
	conversationID string
	exchangeID     string
	key            string
	models         []string
	finished       bool
}

func (x *exchange) detach(modelID string) {
	for i, m := range x.models {
		if m == modelID {
			x.models = append(x.models[:i], x.models[i+1:]...)
			return
		}
	}
}

// Coordinator runs the streaming state machine for every model.
type Coordinator struct {
	store      *store.Store
	gw         Gateway
	channel    Channel
	logger     *log.Logger
	debug      bool
	clearDelay time.Duration
	backoff    Backoff

	reconnector *Reconnector

	// mu serializes every transition. Lock order: mu, then the store.
	mu        sync.Mutex
	exchanges map[string]*exchange // by subscription key
	owner     map[string]*exchange // by model id
	timers    map[*time.Timer]struct{}
	closed    bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. With debug set, every token is logged.
func WithLogger(logger *log.Logger, debug bool) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
		c.debug = debug
	}
}

// WithClearDelay sets how long a completed buffer is kept.
func WithClearDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.clearDelay = d }
}

// WithBackoff sets the reconnection policy.
func WithBackoff(b Backoff) Option {
	return func(c *Coordinator) { c.backoff = b }
}

// New creates a coordinator and hooks reconnection into channel.
func New(st *store.Store, gw Gateway, channel Channel, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      st,
		gw:         gw,
		channel:    channel,
		logger:     log.Default(),
		clearDelay: DefaultClearDelay,
		backoff:    DefaultBackoff(),
		exchanges:  make(map[string]*exchange),
		owner:      make(map[string]*exchange),
		timers:     make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reconnector = NewReconnector(c.backoff, channel.Connect, c.logger)
	c.reconnector.OnExhausted(c.reconnectExhausted)
	channel.OnConnectionLost(c.reconnector.Trigger)
	return c
}

// Reconnector returns the transport reconnector.
func (c *Coordinator) Reconnector() *Reconnector {
	return c.reconnector
}

// Close cancels every exchange and stops reconnection.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.exchanges = make(map[string]*exchange)
	c.owner = make(map[string]*exchange)
	c.mu.Unlock()

	c.reconnector.Stop()
	c.channel.UnsubscribeAll()
}

// =============================================================================
// TURNS
// =============================================================================

// CreateConversation creates a conversation for modelIDs.
func (c *Coordinator) CreateConversation(ctx context.Context, modelIDs []string) (store.PersistResult, error) {
	return c.store.CreateConversation(ctx, modelIDs)
}

// AddMessage persists a message without starting a stream.
func (c *Coordinator) AddMessage(ctx context.Context, conversationID string, draft model.Draft) (store.PersistResult, error) {
	return c.store.AddMessage(ctx, conversationID, draft)
}

// SendTurn adds a user message and streams the reply of every model in
// modelIDs (the selected models when empty). The user message id is the
// exchange id.
func (c *Coordinator) SendTurn(ctx context.Context, conversationID, content string, modelIDs []string) (store.PersistResult, error) {
	if len(modelIDs) == 0 {
		modelIDs = c.store.SelectedModels()
	}
	if len(modelIDs) == 0 {
		return store.PersistResult{}, store.ErrNoModels
	}
	res, err := c.store.AddMessage(ctx, conversationID, model.Draft{Role: model.RoleUser, Content: content})
	if err != nil {
		return res, err
	}
	return res, c.StartStreaming(ctx, conversationID, res.ID, modelIDs)
}

// StartStreaming opens exchangeID's stream for modelIDs. Every model's state
// is reset to connecting before any network call. A failed initialization
// or subscription puts every model in the error state.
func (c *Coordinator) StartStreaming(ctx context.Context, conversationID, exchangeID string, modelIDs []string) error {
	ids := uniq(modelIDs)
	if len(ids) == 0 {
		return store.ErrNoModels
	}

	x := &exchange{
		conversationID: conversationID,
		exchangeID:     exchangeID,
		key:            model.SubscriptionKey(conversationID, exchangeID),
		models:         ids,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var stale []string
	if old := c.exchanges[x.key]; old != nil {
		old.finished = true
		for _, m := range old.models {
			delete(c.owner, m)
		}
		old.models = nil
		delete(c.exchanges, x.key)
	}
	for _, m := range ids {
		if prev := c.owner[m]; prev != nil {
			prev.detach(m)
			if len(prev.models) == 0 {
				if key := c.removeLocked(prev); key != "" {
					stale = append(stale, key)
				}
			}
		}
		c.owner[m] = x
		c.store.ResetStreamingState(m, model.StreamingState{
			IsStreaming: true,
			Status:      model.StatusConnecting,
			MessageID:   exchangeID,
		})
	}
	c.exchanges[x.key] = x
	c.mu.Unlock()

	for _, key := range stale {
		c.channel.Unsubscribe(key)
	}
	c.logger.Printf("SESSION_START | conversation=%s exchange=%s models=%d", conversationID, exchangeID, len(ids))

	si, err := c.gw.InitializeStream(ctx, conversationID, exchangeID)
	if err != nil {
		c.fail(x, errorText(err, "Failed to start streaming"))
		c.logger.Printf("SESSION_INIT_FAILED | exchange=%s error=%v", exchangeID, err)
		return fmt.Errorf("initializing stream: %w", err)
	}
	if si.ConnectionID != "" {
		c.apply(x, func(m string) store.StreamingPatch {
			return store.StreamingPatch{ConnectionID: strPtr(si.ConnectionID)}
		})
	}

	if err := c.channel.Connect(ctx); err != nil {
		c.fail(x, errorText(err, "Failed to connect"))
		return err
	}
	if _, err := c.channel.Subscribe(conversationID, exchangeID, func(ev cable.Event) { c.handle(x, ev) }); err != nil {
		c.fail(x, errorText(err, "Failed to subscribe"))
		return err
	}

	// Every model may have been stopped or taken over while the network
	// calls ran. The subscription is dropped unless a newer exchange
	// registered the same key.
	c.mu.Lock()
	orphaned := false
	if len(x.models) == 0 && c.exchanges[x.key] == x {
		c.removeLocked(x)
		orphaned = true
	} else if x.finished && c.exchanges[x.key] == nil {
		orphaned = true
	}
	c.mu.Unlock()
	if orphaned {
		c.logger.Printf("SESSION_ORPHANED | exchange=%s", exchangeID)
		c.channel.Unsubscribe(x.key)
	}
	return nil
}

// StopStreaming cancels modelID's stream. Its buffer is discarded and no
// message is materialized. It reports whether the model was attached to an
// exchange.
func (c *Coordinator) StopStreaming(modelID string) bool {
	c.mu.Lock()
	x := c.owner[modelID]
	var key string
	if x != nil {
		delete(c.owner, modelID)
		x.detach(modelID)
		if len(x.models) == 0 {
			key = c.removeLocked(x)
		}
	}
	c.store.UpdateStreamingState(modelID, store.StreamingPatch{
		IsStreaming:    boolPtr(false),
		Status:         statusPtr(model.StatusDisconnected),
		CurrentMessage: strPtr(""),
	})
	c.mu.Unlock()

	if key != "" {
		c.channel.Unsubscribe(key)
	}
	c.logger.Printf("SESSION_STOP | model=%s attached=%t", modelID, x != nil)
	return x != nil
}

// StopAll cancels every model's stream.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.owner))
	for m := range c.owner {
		ids = append(ids, m)
	}
	c.mu.Unlock()
	for _, m := range ids {
		c.StopStreaming(m)
	}
}

// RemoveModel stops modelID and deselects it.
func (c *Coordinator) RemoveModel(modelID string) bool {
	c.StopStreaming(modelID)
	return c.store.RemoveModel(modelID)
}

// Streaming reports whether any model is attached to an exchange.
func (c *Coordinator) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owner) > 0
}

// =============================================================================
// EVENT INGESTION
// =============================================================================

// handle applies one stream event to every model still attached to x.
func (c *Coordinator) handle(x *exchange, ev cable.Event) {
	c.mu.Lock()
	if x.finished || c.closed {
		c.mu.Unlock()
		return
	}

	var unsubscribe string
	staged := false
	switch ev.Kind {
	case cable.EventSubscribed, cable.EventStreamConnected:
		for _, m := range c.ownedLocked(x) {
			patch := store.StreamingPatch{}
			if ev.ConnectionID != "" {
				patch.ConnectionID = strPtr(ev.ConnectionID)
			}
			if c.store.StreamingState(m).Status == model.StatusConnecting {
				patch.Status = statusPtr(model.StatusConnected)
			}
			c.store.UpdateStreamingState(m, patch)
		}

	case cable.EventStatus:
		status, ok := model.ParseStreamStatus(ev.Status)
		if !ok || !status.IsActive() {
			// Terminal states come from message_complete and error frames.
			if c.debug {
				c.logger.Printf("SESSION_STATUS_IGNORED | exchange=%s status=%s", x.exchangeID, ev.Status)
			}
			break
		}
		for _, m := range c.ownedLocked(x) {
			c.store.UpdateStreamingState(m, store.StreamingPatch{Status: statusPtr(status)})
		}

	case cable.EventToken:
		if c.debug {
			c.logger.Printf("SESSION_TOKEN | exchange=%s bytes=%d", x.exchangeID, len(ev.Content))
		}
		for _, m := range c.ownedLocked(x) {
			c.store.UpdateStreamingState(m, store.StreamingPatch{
				Status:      statusPtr(model.StatusGenerating),
				IsStreaming: boolPtr(true),
				Append:      ev.Content,
			})
		}

	case cable.EventComplete:
		unsubscribe, staged = c.completeLocked(x, ev.Content)

	case cable.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "Streaming error"
		}
		for _, m := range c.ownedLocked(x) {
			c.store.UpdateStreamingState(m, store.StreamingPatch{
				IsStreaming: boolPtr(false),
				Status:      statusPtr(model.StatusError),
				Error:       strPtr(msg),
			})
		}
		c.logger.Printf("SESSION_ERROR | exchange=%s error=%s", x.exchangeID, msg)
		unsubscribe = c.removeLocked(x)

	case cable.EventDisconnected:
		for _, m := range c.ownedLocked(x) {
			c.store.UpdateStreamingState(m, store.StreamingPatch{
				IsStreaming: boolPtr(false),
				Status:      statusPtr(model.StatusDisconnected),
			})
		}
		c.logger.Printf("SESSION_DISCONNECTED | exchange=%s", x.exchangeID)
		// The transport already dropped the subscription.
		c.removeLocked(x)
	}
	c.mu.Unlock()

	// The archive write happens outside c.mu.
	if staged {
		c.store.Persist(x.conversationID)
	}
	if unsubscribe != "" {
		c.channel.Unsubscribe(unsubscribe)
	}
}

// completeLocked materializes one assistant message per attached model and
// finishes x. It returns the key to unsubscribe and whether any message was
// staged for the archive.
func (c *Coordinator) completeLocked(x *exchange, payload string) (string, bool) {
	staged := false
	for _, m := range c.ownedLocked(x) {
		content := payload
		if content == "" {
			content = c.store.StreamingState(m).CurrentMessage
		}
		if content != "" {
			msg := model.NewAssistantMessage(x.conversationID, m, content)
			if c.store.StageMessage(x.conversationID, msg) {
				staged = true
			} else {
				c.logger.Printf("SESSION_MATERIALIZE_SKIPPED | exchange=%s model=%s reason=no_conversation", x.exchangeID, m)
			}
		} else {
			c.logger.Printf("SESSION_MATERIALIZE_SKIPPED | exchange=%s model=%s reason=empty", x.exchangeID, m)
		}
		c.store.UpdateStreamingState(m, store.StreamingPatch{
			IsStreaming:    boolPtr(false),
			Status:         statusPtr(model.StatusComplete),
			CurrentMessage: strPtr(content),
		})
		c.scheduleClearLocked(m, x.exchangeID)
	}
	c.logger.Printf("SESSION_COMPLETE | exchange=%s models=%d", x.exchangeID, len(x.models))
	return c.removeLocked(x), staged
}

// scheduleClearLocked empties modelID's buffer after the clear delay unless
// a newer exchange took the model over.
func (c *Coordinator) scheduleClearLocked(modelID, exchangeID string) {
	var t *time.Timer
	t = time.AfterFunc(c.clearDelay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		delete(c.timers, t)
		c.store.UpdateStreamingState(modelID, store.StreamingPatch{
			CurrentMessage: strPtr(""),
			IfMessageID:    exchangeID,
		})
		c.mu.Unlock()
	})
	c.timers[t] = struct{}{}
}

// ownedLocked returns the models of x that x still owns.
func (c *Coordinator) ownedLocked(x *exchange) []string {
	out := make([]string, 0, len(x.models))
	for _, m := range x.models {
		if c.owner[m] == x {
			out = append(out, m)
		}
	}
	return out
}

// removeLocked finishes x and releases its models. It returns x's key when
// x is still the exchange registered under it, and "" otherwise.
func (c *Coordinator) removeLocked(x *exchange) string {
	x.finished = true
	for _, m := range x.models {
		if c.owner[m] == x {
			delete(c.owner, m)
		}
	}
	if c.exchanges[x.key] != x {
		return ""
	}
	delete(c.exchanges, x.key)
	return x.key
}

// fail puts every model still attached to x into the error state.
func (c *Coordinator) fail(x *exchange, msg string) {
	c.mu.Lock()
	for _, m := range c.ownedLocked(x) {
		c.store.UpdateStreamingState(m, store.StreamingPatch{
			IsStreaming: boolPtr(false),
			Status:      statusPtr(model.StatusError),
			Error:       strPtr(msg),
		})
	}
	c.removeLocked(x)
	c.mu.Unlock()
}

// apply patches every model still attached to x.
func (c *Coordinator) apply(x *exchange, patch func(modelID string) store.StreamingPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x.finished {
		return
	}
	for _, m := range c.ownedLocked(x) {
		c.store.UpdateStreamingState(m, patch(m))
	}
}

// reconnectExhausted surfaces a terminal connection error on every idle model.
func (c *Coordinator) reconnectExhausted(err error) {
	msg := "Connection lost: " + err.Error()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for m, st := range c.store.StreamingStates() {
		if st.IsStreaming {
			continue
		}
		c.store.UpdateStreamingState(m, store.StreamingPatch{
			Status: statusPtr(model.StatusError),
			Error:  strPtr(msg),
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// errorText returns the user-facing text of err.
func errorText(err error, fallback string) string {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func strPtr(s string) *string                           { return &s }
func boolPtr(b bool) *bool                              { return &b }
func statusPtr(s model.StreamStatus) *model.StreamStatus { return &s }
