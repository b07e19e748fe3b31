/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/acronis/go-feedgate/httpserver/middleware"
)

// HeaderRequestID is a header with which the request id of the incoming request is propagated.
const HeaderRequestID = middleware.HeaderRequestID

// RequestIDRoundTripper implements http.RoundTripper and propagates the id of the incoming request
// (see middleware.RequestID) to outgoing requests.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
}

// NewRequestIDRoundTripper creates a new RequestIDRoundTripper.
func NewRequestIDRoundTripper(delegate http.RoundTripper) *RequestIDRoundTripper {
	return &RequestIDRoundTripper{Delegate: delegate}
}

// RoundTrip executes a single HTTP transaction with the X-Request-ID header set.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	if requestID == "" || r.Header.Get(HeaderRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = r.Clone(r.Context()) // Per RoundTripper contract.
	r.Header.Set(HeaderRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
