/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	var gotRequestID, gotInternalRequestID string
	n := 0
	handler := RequestIDWithOpts(RequestIDOpts{
		NewID: func() string {
			n++
			return "gen-" + strconv.Itoa(n)
		},
		MaxLength: 16,
	})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotRequestID = GetRequestIDFromContext(r.Context())
		gotInternalRequestID = GetInternalRequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name              string
		reqID             string
		wantRequestID     string
		wantInternalReqID string
	}{
		{name: "request id is generated", wantRequestID: "gen-1", wantInternalReqID: "gen-2"},
		{name: "request id is taken from header", reqID: "client-req-1", wantRequestID: "client-req-1", wantInternalReqID: "gen-3"},
		{name: "too long request id is replaced", reqID: strings.Repeat("a", 17), wantRequestID: "gen-4", wantInternalReqID: "gen-5"},
		{name: "request id with spaces is replaced", reqID: "client req", wantRequestID: "gen-6", wantInternalReqID: "gen-7"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/feed", nil)
		if tt.reqID != "" {
			req.Header.Set(HeaderRequestID, tt.reqID)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, tt.wantRequestID, gotRequestID, tt.name)
		require.Equal(t, tt.wantInternalReqID, gotInternalRequestID, tt.name)
		require.Equal(t, tt.wantRequestID, resp.Header().Get(HeaderRequestID), tt.name)
		require.Equal(t, tt.wantInternalReqID, resp.Header().Get(HeaderInternalRequestID), tt.name)
	}

	t.Run("xid generator by default", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RequestID()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})).
			ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/feed", nil))
		require.Len(t, resp.Header().Get(HeaderRequestID), 20)
		require.NotEqual(t, resp.Header().Get(HeaderRequestID), resp.Header().Get(HeaderInternalRequestID))
	})
}
