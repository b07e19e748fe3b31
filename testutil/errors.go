/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"time"

	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel asserts that there is no error in buffered channel.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	markHelper(t)
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

// RequireClosedWithin asserts that the channel is closed (or receives a value) before timeout expires.
func RequireClosedWithin(t require.TestingT, c <-chan struct{}, timeout time.Duration, msgAndArgs ...interface{}) {
	markHelper(t)
	select {
	case <-c:
	case <-time.After(timeout):
		require.FailNow(t, "channel is not closed within "+timeout.String(), msgAndArgs...)
	}
}
