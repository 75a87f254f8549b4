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
)

// ErrReconnectExhausted is reported once every reconnection attempt failed.
var ErrReconnectExhausted = errors.New("session: reconnection attempts exhausted")

// Backoff is the reconnection delay policy.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns 5 attempts starting at 1s, capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before attempt n (1-based): min(Base·2^(n-1), Cap).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Cap > 0 && delay >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && delay > b.Cap {
		return b.Cap
	}
	return delay
}

// =============================================================================
// RECONNECTOR
// =============================================================================

// stopper is the part of *time.Timer the reconnector uses.
type stopper interface {
	Stop() bool
}

// Reconnector re-establishes a lost transport with exponential backoff.
// Exchanges are not resent; only the transport is restored.
type Reconnector struct {
	backoff Backoff
	connect func(context.Context) error
	logger  *log.Logger

	// afterFunc schedules attempts; replaced in tests.
	afterFunc func(time.Duration, func()) stopper

	mu            sync.Mutex
	attempt       int
	running       bool
	stopped       bool
	pending       stopper
	cancel        context.CancelFunc
	onReconnected func()
	onExhausted   func(error)
}

// NewReconnector creates a reconnector that calls connect on each attempt.
func NewReconnector(b Backoff, connect func(context.Context) error, logger *log.Logger) *Reconnector {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconnector{
		backoff: b,
		connect: connect,
		logger:  logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// OnReconnected registers fn to run after a successful attempt.
func (r *Reconnector) OnReconnected(fn func()) {
	r.mu.Lock()
	r.onReconnected = fn
	r.mu.Unlock()
}

// OnExhausted registers fn to run when the last attempt fails. The error
// wraps ErrReconnectExhausted.
func (r *Reconnector) OnExhausted(fn func(error)) {
	r.mu.Lock()
	r.onExhausted = fn
	r.mu.Unlock()
}

// Trigger starts a reconnection cycle. It is a no-op while a cycle is
// already running.
func (r *Reconnector) Trigger(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.running {
		return
	}
	r.running = true
	r.attempt = 0
	r.logger.Printf("RECONNECT_START | cause=%v", cause)
	r.scheduleLocked(cause)
}

// Attempts returns the number of attempts scheduled in the current cycle.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Running reports whether a cycle is in progress.
func (r *Reconnector) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop cancels any pending attempt. Later Triggers are ignored.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.running = false
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reconnector) scheduleLocked(lastErr error) {
	if r.attempt >= r.backoff.MaxAttempts {
		r.running = false
		r.pending = nil
		err := fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, r.attempt, lastErr)
		r.logger.Printf("RECONNECT_EXHAUSTED | attempts=%d error=%v", r.attempt, lastErr)
		if fn := r.onExhausted; fn != nil {
			go fn(err)
		}
		return
	}

	r.attempt++
	attempt := r.attempt
	delay := r.backoff.Delay(attempt)
	r.logger.Printf("RECONNECT_SCHEDULED | attempt=%d delay=%s", attempt, delay)
	r.pending = r.afterFunc(delay, func() { r.try(attempt) })
}

func (r *Reconnector) try(attempt int) {
	r.mu.Lock()
	if r.stopped || !r.running || r.attempt != attempt {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	err := r.connect(ctx)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = nil
	if r.stopped {
		return
	}
	if err == nil {
		r.running = false
		r.pending = nil
		r.logger.Printf("RECONNECTED | attempt=%d", attempt)
		if fn := r.onReconnected; fn != nil {
			go fn()
		}
		return
	}
	r.logger.Printf("RECONNECT_FAILED | attempt=%d error=%v", attempt, err)
	r.scheduleLocked(err)
}
