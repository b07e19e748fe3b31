/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log/logtest"
)

func TestNewWithOpts(t *testing.T) {
	var gotUserAgent, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get(HeaderRequestID)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Logger.Mode = LoggingModeAll
	cfg.RateLimits = RateLimitsConfig{Enabled: true, Limit: 100, Burst: 10}
	collector := NewPrometheusMetricsCollector("")
	logger := logtest.NewRecorder()

	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   "go-feedgate/1.0",
		RequestType: "backend",
		Logger:      logger,
		Collector:   collector,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, time.Second, client.Timeout)

	ctx := middleware.NewContextWithRequestID(context.Background(), "req-1")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, server.URL+"/document/v1/doc", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "go-feedgate/1.0", gotUserAgent)
	require.Equal(t, "req-1", gotRequestID)
	require.Len(t, logger.Entries(), 1)
	require.Equal(t, 1, testutil.CollectAndCount(collector.Durations))
}

func TestNewWithOpts_Errors(t *testing.T) {
	cfg := NewConfig()
	cfg.RateLimits = RateLimitsConfig{Enabled: true, Limit: 0}
	_, err := New(cfg)
	require.EqualError(t, err, "create rate limiting round tripper: rate limit must be positive")

	require.Panics(t, func() { MustWithOpts(cfg, Opts{}) })
}

func TestNew_NothingEnabled(t *testing.T) {
	logger := logtest.NewRecorder()
	server := newStatusServer(http.StatusBadGateway)
	defer server.Close()

	client, err := NewWithOpts(NewConfig(), Opts{Logger: logger})
	require.NoError(t, err)
	resp, err := client.Post(server.URL, "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Empty(t, logger.Entries())

	_, ok := client.Transport.(*RequestIDRoundTripper)
	require.True(t, ok)
}
