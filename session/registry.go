/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/acronis/go-feedgate/log"
)

// Factory builds a session for a client which is seen for the first time.
type Factory func() (*Session, error)

// RegistryOpts contains optional parameters for constructing Registry.
type RegistryOpts struct {
	// OnAdmit is called under the registry lock for every GetOrCreate call
	// (the admission budget ramp is advanced here).
	OnAdmit func(now time.Time)
	Clock   func() time.Time
	Logger  log.FieldLogger
}

// Registry maps client ids to sessions. There is at most one session per client id.
// Locks are held only for bookkeeping, sessions are killed after the lock is released.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	onAdmit func(now time.Time)
	clock   func() time.Time
	logger  log.FieldLogger
}

// NewRegistry creates a new empty Registry.
func NewRegistry(opts RegistryOpts) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		onAdmit:  opts.OnAdmit,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = log.NewDisabledLogger()
	}
	return r
}

// GetOrCreate returns the session of the client, the factory is used to build it on the first call.
// The second result is true if the session has been created by this call.
// A factory error is returned wrapped with ErrSessionCreation and nothing is stored.
func (r *Registry) GetOrCreate(clientID string, factory Factory) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	if r.onAdmit != nil {
		r.onAdmit(r.clock())
	}

	if s, ok := r.sessions[clientID]; ok {
		return s, false, nil
	}
	s, err := factory()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	r.sessions[clientID] = s
	r.logger.Info("client session created", log.String("client_id", clientID), log.Int("sessions", len(r.sessions)))
	return s, true, nil
}

// Get returns the session of the client if it exists.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IsClosed reports whether KillAllAndClear has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// EvictIdle removes sessions which have been idle for longer than idleTimeout and kills them.
// It returns the number of evicted sessions. A failed kill doesn't prevent killing the rest.
func (r *Registry) EvictIdle(idleTimeout time.Duration, now time.Time) int {
	r.mu.Lock()
	var idle []*Session
	for clientID, s := range r.sessions {
		if s.IsIdle(idleTimeout, now) {
			idle = append(idle, s)
			delete(r.sessions, clientID)
		}
	}
	left := len(r.sessions)
	r.mu.Unlock()

	for _, s := range idle {
		if err := killSafely(s); err != nil {
			r.logger.Warn("killing idle client session failed", log.String("client_id", s.ClientID()), log.Error(err))
		}
	}
	if len(idle) != 0 {
		r.logger.Info("idle client sessions evicted", log.Int("evicted", len(idle)), log.Int("sessions", left))
	}
	return len(idle)
}

// KillAllAndClear closes the registry and kills all its sessions.
// Errors of single sessions are combined, every session is killed anyway.
// Once closed, the registry never accepts new sessions. Repeated calls are no-ops.
func (r *Registry) KillAllAndClear() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var err error
	for _, s := range all {
		err = multierr.Append(err, killSafely(s))
	}
	if err != nil {
		r.logger.Error("killing client sessions failed", log.Int("sessions", len(all)), log.Error(err))
		return err
	}
	if len(all) != 0 {
		r.logger.Info("all client sessions killed", log.Int("sessions", len(all)))
	}
	return nil
}

// killSafely turns a panic of Kill into an error so the remaining sessions are killed too.
func killSafely(s *Session) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("kill session of client %q: panic: %v", s.ClientID(), p)
		}
	}()
	return s.Kill()
}
