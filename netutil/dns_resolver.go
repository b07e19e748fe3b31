/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers used by the backend transport.
package netutil

import (
	"context"
	"net"
	"time"

	"go.uber.org/atomic"
)

// Dial parameters of the backend transport.
const (
	DefaultDialTimeout   = 30 * time.Second
	DefaultDialKeepAlive = 30 * time.Second
)

// NewCustomDNSResolver creates a resolver that sends queries to the given DNS servers ("host:port")
// in round-robin order instead of the ones from the system configuration.
func NewCustomDNSResolver(addrs []string, timeout time.Duration) *net.Resolver {
	var idx atomic.Uint32
	n := uint32(len(addrs)) //nolint:gosec // address count is reasonable
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "udp", addrs[idx.Inc()%n])
		},
	}
}

// NewDialer creates a dialer for the backend transport.
// Backend host names are resolved with the given DNS servers if any.
func NewDialer(dnsServers []string, dnsTimeout time.Duration) *net.Dialer {
	d := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultDialKeepAlive}
	if len(dnsServers) != 0 {
		d.Resolver = NewCustomDNSResolver(dnsServers, dnsTimeout)
	}
	return d
}
