/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

// Headers carrying request ids in both directions.
const (
	HeaderRequestID         = "X-Request-ID"
	HeaderInternalRequestID = "X-Int-Request-ID"
)

// DefaultMaxRequestIDLength is the longest X-Request-ID taken from a client as is.
const DefaultMaxRequestIDLength = 128

// RequestIDOpts configures RequestIDWithOpts.
type RequestIDOpts struct {
	// NewID generates both the missing X-Request-ID and the internal id. xid is used by default.
	NewID func() string

	// MaxLength limits the client supplied X-Request-ID; a longer or non-printable value is replaced.
	MaxLength int
}

// RequestID makes sure every request has an X-Request-ID (the client's one or a generated one) and
// generates the internal id for it. Both ids are stored in the request context and sent back
// in the response headers.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is RequestID with a custom id generator and length limit.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return xid.New().String() }
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxRequestIDLength
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if !isValidRequestID(requestID, maxLen) {
				requestID = newID()
			}
			internalRequestID := newID()

			rw.Header().Set(HeaderRequestID, requestID)
			rw.Header().Set(HeaderInternalRequestID, internalRequestID)

			ctx := NewContextWithRequestID(r.Context(), requestID)
			ctx = NewContextWithInternalRequestID(ctx, internalRequestID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func isValidRequestID(id string, maxLen int) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
