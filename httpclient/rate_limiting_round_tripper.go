/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperAdaptation describes how the limit is adapted to the value the server returns in a response header.
type RateLimitingRoundTripperAdaptation struct {
	ResponseHeaderName string
	SlackPercent       int
}

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation
}

// RateLimitingRoundTripper implements http.RoundTripper and limits the rate of outgoing requests.
// The limit may be lowered by the server with a response header (see RateLimitingRoundTripperAdaptation).
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
	Adaptation  RateLimitingRoundTripperAdaptation

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with the rate limit in requests per second.
// Default values are used for options that are not set.
func NewRateLimitingRoundTripper(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst cannot be negative")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	if opts.Adaptation.SlackPercent < 0 || opts.Adaptation.SlackPercent > 100 {
		return nil, fmt.Errorf("slack percent must be in range [0..100]")
	}
	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
		Adaptation:  opts.Adaptation,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
	}, nil
}

// RoundTrip waits for the rate limiter and executes a single HTTP transaction.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	err := rt.limiter.Wait(ctx)
	cancel()
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.Adaptation.ResponseHeaderName != "" {
		rt.adaptLimit(rt.limitFromResponse(resp))
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) limitFromResponse(resp *http.Response) int {
	val := resp.Header.Get(rt.Adaptation.ResponseHeaderName)
	if val == "" {
		return 0
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit < 0 {
		return 0
	}
	limit = limit * (100 - rt.Adaptation.SlackPercent) / 100
	if limit == 0 {
		return 1 // Keep sending 1 request per second instead of stopping completely.
	}
	return limit
}

// adaptLimit restores the configured limit when the header is missing (limit is 0)
// and never raises the limit above the configured one.
func (rt *RateLimitingRoundTripper) adaptLimit(limit int) {
	if limit == 0 || limit > rt.RateLimit {
		limit = rt.RateLimit
	}
	if rt.limiter.Limit() != rate.Limit(limit) {
		rt.limiter.SetLimit(rate.Limit(limit))
	}
}

// RateLimitingWaitError is returned when the request could not be sent because of the client-side rate limit.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}

// CurrentLimit returns the current rate limit in requests per second.
func (rt *RateLimitingRoundTripper) CurrentLimit() int {
	return int(rt.limiter.Limit())
}
