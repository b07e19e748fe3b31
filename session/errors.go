/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import "errors"

// ErrClientTerminated is returned by a session which has been killed (evicted or torn down on shutdown).
var ErrClientTerminated = errors.New("client session is terminated")

// ErrResourceExhausted is returned when no admission permit is available for a blocking delivery.
var ErrResourceExhausted = errors.New("no admission permits available")

// ErrSessionCreation wraps errors returned by a session factory.
var ErrSessionCreation = errors.New("session creation failed")

// ErrRegistryClosed is returned by the registry after all its sessions have been killed.
var ErrRegistryClosed = errors.New("session registry is closed")

// ErrReaperStopped is returned when a stopped reaper is started again.
var ErrReaperStopped = errors.New("reaper is stopped")
