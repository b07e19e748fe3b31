/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers shared by tests of the feed gateway packages.
package testutil

import "github.com/stretchr/testify/require"

type tHelper interface {
	Helper()
}

func markHelper(t require.TestingT) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}
