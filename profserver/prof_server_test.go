/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/log/logtest"
	"github.com/acronis/go-feedgate/testutil"
)

func TestProfServer_Start(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()

	profServer := New(&Config{Address: addr}, logtest.NewRecorder())
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, time.Second*3))
	defer func() {
		require.NoError(t, profServer.Stop(false))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	}()

	resp, err := http.Get(profServer.URL + "/debug/pprof/")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, len(respBody) > 0)
	require.Equal(t, "no-cache, no-store, no-transform, must-revalidate, private, max-age=0", resp.Header.Get("Cache-Control"))
}

func TestProfServer_StopBeforeStart(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	profServer := New(&Config{Address: addr}, logtest.NewRecorder())
	require.NoError(t, profServer.Stop(true))

	fatalErr := make(chan error, 1)
	profServer.Start(fatalErr)
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

func TestProfServer_StartError(t *testing.T) {
	addr := testutil.GetLocalAddrWithFreeTCPPort()
	busy, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { require.NoError(t, busy.Close()) }()

	profServer := New(&Config{Address: addr}, logtest.NewRecorder())
	fatalErr := make(chan error, 1)
	profServer.Start(fatalErr)
	require.Error(t, <-fatalErr)
}
