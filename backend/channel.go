/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package backend contains the delivery channel which forwards feed operations to the document backend.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/acronis/go-feedgate/feed"
)

// DefaultTimeout is the delivery timeout used when client doesn't specify one.
const DefaultTimeout = time.Second * 180

// ErrHandleReleased is returned by Handle.Deliver after the handle is released.
var ErrHandleReleased = errors.New("backend handle is released")

// HandleParams contains parameters of a handle opened for a single client.
type HandleParams struct {
	ClientID string
	// Timeout bounds a single delivery including retries.
	Timeout time.Duration
}

// Handle delivers operations of a single client.
// Release must be called exactly once, it waits for deliveries which are in progress.
type Handle interface {
	Deliver(ctx context.Context, op feed.Operation) error
	Release() error
}

// Channel opens delivery handles. Open must not do any I/O since it's called under the session registry lock.
type Channel interface {
	Open(params HandleParams) (Handle, error)
}
