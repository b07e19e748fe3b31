/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package backendtest provides an in-memory backend.Channel for tests.
package backendtest

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/feed"
)

// DeliverFunc is called for every delivered operation.
type DeliverFunc func(ctx context.Context, params backend.HandleParams, op feed.Operation) error

// Channel is a fake backend.Channel which records everything that happens with its handles.
type Channel struct {
	mu      sync.Mutex
	handles []*Handle
	openErr error
	deliver DeliverFunc
	release func(params backend.HandleParams) error
}

var _ backend.Channel = (*Channel)(nil)

// NewChannel creates a new fake channel which accepts all operations.
func NewChannel() *Channel {
	return &Channel{}
}

// FailOpen makes all further Open calls fail with err (nil restores normal behavior).
func (c *Channel) FailOpen(err error) {
	c.mu.Lock()
	c.openErr = err
	c.mu.Unlock()
}

// OnDeliver sets the function which is called for every delivery (may block to simulate slow backend).
func (c *Channel) OnDeliver(fn DeliverFunc) {
	c.mu.Lock()
	c.deliver = fn
	c.mu.Unlock()
}

// OnRelease sets the function which is called on the first release of every handle.
func (c *Channel) OnRelease(fn func(params backend.HandleParams) error) {
	c.mu.Lock()
	c.release = fn
	c.mu.Unlock()
}

// Open implements backend.Channel.
func (c *Channel) Open(params backend.HandleParams) (backend.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	h := &Handle{Params: params, channel: c}
	c.handles = append(c.handles, h)
	return h, nil
}

// Handles returns all opened handles in order of opening.
func (c *Channel) Handles() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Handle(nil), c.handles...)
}

// Delivered returns all operations delivered through all handles.
func (c *Channel) Delivered() []feed.Operation {
	var ops []feed.Operation
	for _, h := range c.Handles() {
		ops = append(ops, h.Delivered()...)
	}
	return ops
}

func (c *Channel) hooks() (DeliverFunc, func(params backend.HandleParams) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliver, c.release
}

// Handle is a fake backend.Handle.
type Handle struct {
	Params  backend.HandleParams
	channel *Channel

	// Deliveries hold the read lock, Release takes the write lock and so waits for them.
	mu        sync.RWMutex
	released  atomic.Bool
	delivered []feed.Operation
	opsMu     sync.Mutex

	releases atomic.Int32
}

// Deliver implements backend.Handle.
func (h *Handle) Deliver(ctx context.Context, op feed.Operation) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released.Load() {
		return backend.ErrHandleReleased
	}
	if deliver, _ := h.channel.hooks(); deliver != nil {
		if err := deliver(ctx, h.Params, op); err != nil {
			return err
		}
	}
	h.opsMu.Lock()
	h.delivered = append(h.delivered, op)
	h.opsMu.Unlock()
	return nil
}

// Release implements backend.Handle. It waits for in-progress deliveries.
func (h *Handle) Release() error {
	h.releases.Inc()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released.Load() {
		return backend.ErrHandleReleased
	}
	h.released.Store(true)
	if _, release := h.channel.hooks(); release != nil {
		return release(h.Params)
	}
	return nil
}

// Released reports whether the handle is released.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// ReleaseCalls returns how many times Release was called.
func (h *Handle) ReleaseCalls() int {
	return int(h.releases.Load())
}

// Delivered returns operations delivered through the handle.
func (h *Handle) Delivered() []feed.Operation {
	h.opsMu.Lock()
	defer h.opsMu.Unlock()
	return append([]feed.Operation(nil), h.delivered...)
}
