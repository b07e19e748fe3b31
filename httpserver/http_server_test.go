/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/config"
	"github.com/acronis/go-feedgate/log/logtest"
	"github.com/acronis/go-feedgate/testutil"
)

const testErrDomain = "FeedGateTest"

func startTestServer(t *testing.T, cfg *Config, opts Opts) (srv *HTTPServer, baseURL string) {
	t.Helper()
	cfg.Address = testutil.GetLocalAddrWithFreeTCPPort()
	opts.ErrorDomain = testErrDomain
	srv = New(cfg, logtest.NewRecorder(), opts)

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(cfg.Address, time.Second*3))
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	})
	return srv, "http://" + cfg.Address
}

func TestHTTPServer(t *testing.T) {
	t.Run("routes and system endpoints", func(t *testing.T) {
		var gotBody string
		_, baseURL := startTestServer(t, NewDefaultConfig(), Opts{
			Routes: []Route{func(router chi.Router) {
				router.Post("/feed", func(rw http.ResponseWriter, r *http.Request) {
					data, _ := io.ReadAll(r.Body)
					gotBody = string(data)
					rw.WriteHeader(http.StatusNoContent)
				})
			}},
			MetricsHandler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				_, _ = rw.Write([]byte("metrics"))
			}),
		})

		resp, err := http.Post(baseURL+"/feed", "application/x-ndjson", strings.NewReader("{}"))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "{}", gotBody)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		resp, err = http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = http.Get(baseURL + "/metrics")
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "metrics", string(data))

		resp, err = http.Get(baseURL + "/unknown")
		require.NoError(t, err)
		testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, testErrDomain, "notFound")
		require.NoError(t, resp.Body.Close())

		resp, err = http.Get(baseURL + "/feed")
		require.NoError(t, err)
		testutil.RequireErrorInResponse(t, resp, http.StatusMethodNotAllowed, testErrDomain, "methodNotAllowed")
		require.NoError(t, resp.Body.Close())
	})

	t.Run("body limit", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Limits.MaxBodySize = config.ByteSize(4)
		_, baseURL := startTestServer(t, cfg, Opts{
			Routes: []Route{func(router chi.Router) {
				router.Post("/feed", func(rw http.ResponseWriter, r *http.Request) {})
			}},
		})
		resp, err := http.Post(baseURL+"/feed", "application/x-ndjson", strings.NewReader("0123456789"))
		require.NoError(t, err)
		testutil.RequireErrorInResponse(t, resp, http.StatusRequestEntityTooLarge, testErrDomain, "requestEntityTooLarge")
		require.NoError(t, resp.Body.Close())
	})

	t.Run("addr", func(t *testing.T) {
		srv, baseURL := startTestServer(t, NewDefaultConfig(), Opts{})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		addr, err := srv.Addr(ctx)
		require.NoError(t, err)
		require.Equal(t, strings.TrimPrefix(baseURL, "http://"), addr.String())
	})

	t.Run("stop without start", func(t *testing.T) {
		srv := New(NewDefaultConfig(), logtest.NewRecorder(), Opts{})
		require.NoError(t, srv.Stop(false))
	})
}
