/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides a chain of http.RoundTripper implementations for outgoing requests:
// logging, metrics, client-side rate limiting, User-Agent and request id propagation.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-feedgate/log"
)

// Opts provides options for NewWithOpts.
type Opts struct {
	// UserAgent is set in the User-Agent header of outgoing requests if it's not empty.
	UserAgent string

	// RequestType is a type of outgoing requests (e.g. "backend") used in logs and metrics.
	RequestType string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// LoggerProvider returns a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Logger is used when there is no logger in the request context.
	Logger log.FieldLogger

	// Collector is used for metrics if they are enabled in the config.
	Collector MetricsCollector

	// Timeout is a time limit for a request made by the client.
	Timeout time.Duration
}

// New creates a new HTTP client with the transport chain described by the config.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts creates a new HTTP client with the transport chain described by the config and options.
// From the outermost to the innermost: request id, User-Agent, rate limiting, metrics, logging.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.RequestType = opts.RequestType
		logOpts.LoggerProvider = opts.LoggerProvider
		logOpts.Logger = opts.Logger
		delegate = NewLoggingRoundTripper(delegate, logOpts)
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripper(delegate, opts.RequestType, opts.Collector)
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripper(delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts()); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent, UserAgentUpdateStrategySetIfEmpty)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	return &http.Client{Transport: delegate, Timeout: opts.Timeout}, nil
}

// MustWithOpts is the same as NewWithOpts but panics on error.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
