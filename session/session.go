/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package session tracks feeding clients: one Session per client id, the Registry which owns
// sessions and the Reaper which evicts idle ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-feedgate/admission"
	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/feed"
)

// Result describes a successfully dispatched feed request.
type Result struct {
	ClientID   string `json:"clientId"`
	Operations int    `json:"operations"`
}

// Session is the feeding activity of a single client. It owns a backend handle which is released
// exactly once when the session is killed. A killed session never becomes active again.
type Session struct {
	clientID     string
	handle       backend.Handle
	permits      *admission.Permits
	clock        func() time.Time
	lastActivity atomic.Time
	killed       atomic.Bool

	// Dispatches hold the read lock, Kill takes the write lock before releasing the handle.
	dispatchMu sync.RWMutex
	killOnce   sync.Once
}

// New creates a new active session. The shared permits are consulted for every dispatch.
func New(clientID string, handle backend.Handle, permits *admission.Permits, clock func() time.Time) *Session {
	if clock == nil {
		clock = time.Now
	}
	s := &Session{clientID: clientID, handle: handle, permits: permits, clock: clock}
	s.lastActivity.Store(clock())
	return s
}

// ClientID returns id of the client.
func (s *Session) ClientID() string {
	return s.clientID
}

// Touch marks the session as active at the given moment.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now)
}

// LastActivity returns the moment of the last successful dispatch (or creation).
func (s *Session) LastActivity() time.Time {
	return s.lastActivity.Load()
}

// IsIdle reports whether the session has had no activity for longer than timeout.
func (s *Session) IsIdle(timeout time.Duration, now time.Time) bool {
	return now.Sub(s.lastActivity.Load()) > timeout
}

// IsKilled reports whether Kill has been called.
func (s *Session) IsKilled() bool {
	return s.killed.Load()
}

// Kill terminates the session and releases its backend handle.
// A dispatch which is already delivering is allowed to finish first. Dispatches still reading
// their body and new ones fail with ErrClientTerminated.
// Kill may be called many times and concurrently, only the first call releases the handle and
// only it may return an error.
func (s *Session) Kill() error {
	var err error
	s.killOnce.Do(func() {
		s.killed.Store(true)
		s.dispatchMu.Lock()
		defer s.dispatchMu.Unlock()
		if releaseErr := s.handle.Release(); releaseErr != nil {
			err = fmt.Errorf("release backend handle of client %q: %w", s.clientID, releaseErr)
		}
	})
	return err
}

// Dispatch decodes operations from body and delivers them through the backend handle.
// The whole delivery occupies one admission permit. If no permit is available,
// ErrResourceExhausted is returned and nothing is delivered.
func (s *Session) Dispatch(ctx context.Context, body io.Reader) (*Result, error) {
	if s.killed.Load() {
		return nil, ErrClientTerminated
	}

	// The body is read without the lock, a slow upload must not hold Kill back.
	ops, err := feed.Decode(body)
	if err != nil {
		return nil, err
	}

	s.dispatchMu.RLock()
	defer s.dispatchMu.RUnlock()
	if s.killed.Load() {
		return nil, ErrClientTerminated
	}

	if !s.permits.TryAcquire() {
		return nil, ErrResourceExhausted
	}
	defer s.permits.Release()

	for i := range ops {
		if err = s.handle.Deliver(ctx, ops[i]); err != nil {
			if errors.Is(err, backend.ErrHandleReleased) {
				return nil, ErrClientTerminated
			}
			return nil, fmt.Errorf("deliver operation #%d (%s %s): %w", i, ops[i].Type, ops[i].DocumentID, err)
		}
	}

	s.Touch(s.clock())
	return &Result{ClientID: s.clientID, Operations: len(ops)}, nil
}
