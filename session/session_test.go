/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/backend/backendtest"
	"github.com/acronis/go-feedgate/feed"
)

const twoOps = `{"id": "doc-1", "operation": "put", "fields": {"title": "a"}}
{"id": "doc-2", "operation": "remove"}
`

func newTestSession(t *testing.T, ch *backendtest.Channel, totalPermits int, clock *fakeClock) (*Session, *backendtest.Handle) {
	t.Helper()
	h, err := ch.Open(backend.HandleParams{ClientID: "client-1", Timeout: backend.DefaultTimeout})
	require.NoError(t, err)
	return New("client-1", h, newPermits(totalPermits), clock.Now), h.(*backendtest.Handle)
}

func TestSession_Dispatch(t *testing.T) {
	t.Run("operations are delivered and session is touched", func(t *testing.T) {
		clock := newFakeClock()
		ch := backendtest.NewChannel()
		s, h := newTestSession(t, ch, 1, clock)
		created := s.LastActivity()

		clock.Advance(time.Minute)
		res, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
		require.NoError(t, err)
		require.Equal(t, &Result{ClientID: "client-1", Operations: 2}, res)
		require.Equal(t, created.Add(time.Minute), s.LastActivity())

		delivered := h.Delivered()
		require.Len(t, delivered, 2)
		require.Equal(t, "doc-1", delivered[0].DocumentID)
		require.Equal(t, feed.OperationRemove, delivered[1].Type)
		require.Equal(t, 1, s.permits.Available())
	})

	t.Run("malformed payload", func(t *testing.T) {
		clock := newFakeClock()
		ch := backendtest.NewChannel()
		s, h := newTestSession(t, ch, 1, clock)
		created := s.LastActivity()
		clock.Advance(time.Minute)

		_, err := s.Dispatch(context.Background(), strings.NewReader(`{"id": "doc-1", "operation": "upsert"}`))
		require.ErrorIs(t, err, feed.ErrMalformedPayload)
		require.Empty(t, h.Delivered())
		require.Equal(t, created, s.LastActivity())
		require.Equal(t, 1, s.permits.Available())
	})

	t.Run("delivery error", func(t *testing.T) {
		deliveryErr := errors.New("backend is down")
		ch := backendtest.NewChannel()
		ch.OnDeliver(func(ctx context.Context, params backend.HandleParams, op feed.Operation) error {
			if op.DocumentID == "doc-2" {
				return deliveryErr
			}
			return nil
		})
		s, h := newTestSession(t, ch, 1, newFakeClock())

		_, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
		require.ErrorIs(t, err, deliveryErr)
		require.EqualError(t, err, "deliver operation #1 (remove doc-2): backend is down")
		require.Len(t, h.Delivered(), 1)
		require.Equal(t, 1, s.permits.Available())
	})

	t.Run("resource exhaustion", func(t *testing.T) {
		started := make(chan struct{})
		unblock := make(chan struct{})
		ch := backendtest.NewChannel()
		ch.OnDeliver(func(ctx context.Context, params backend.HandleParams, op feed.Operation) error {
			if op.DocumentID == "blocking" {
				close(started)
				<-unblock
			}
			return nil
		})
		s, _ := newTestSession(t, ch, 1, newFakeClock())

		firstErr := make(chan error, 1)
		go func() {
			_, err := s.Dispatch(context.Background(), strings.NewReader(`{"id": "blocking", "operation": "remove"}`))
			firstErr <- err
		}()
		<-started
		require.Equal(t, 0, s.permits.Available())

		_, err := s.Dispatch(context.Background(), strings.NewReader(`{"id": "doc-1", "operation": "remove"}`))
		require.ErrorIs(t, err, ErrResourceExhausted)

		close(unblock)
		require.NoError(t, <-firstErr)
		require.Equal(t, 1, s.permits.Available())

		_, err = s.Dispatch(context.Background(), strings.NewReader(`{"id": "doc-1", "operation": "remove"}`))
		require.NoError(t, err)
	})

	t.Run("killed session", func(t *testing.T) {
		ch := backendtest.NewChannel()
		s, h := newTestSession(t, ch, 1, newFakeClock())
		require.NoError(t, s.Kill())
		require.True(t, s.IsKilled())

		_, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
		require.ErrorIs(t, err, ErrClientTerminated)
		require.Empty(t, h.Delivered())
		require.Equal(t, 1, s.permits.Available())
	})

	t.Run("released handle is reported as terminated client", func(t *testing.T) {
		ch := backendtest.NewChannel()
		s, h := newTestSession(t, ch, 1, newFakeClock())
		require.NoError(t, h.Release())

		_, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
		require.ErrorIs(t, err, ErrClientTerminated)
		require.Equal(t, 1, s.permits.Available())
	})
}

func TestSession_Kill(t *testing.T) {
	t.Run("concurrent calls release handle once", func(t *testing.T) {
		ch := backendtest.NewChannel()
		s, h := newTestSession(t, ch, 1, newFakeClock())

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Kill()
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, 1, h.ReleaseCalls())
		require.True(t, h.Released())
	})

	t.Run("release error is returned by the first call only", func(t *testing.T) {
		ch := backendtest.NewChannel()
		ch.OnRelease(func(params backend.HandleParams) error {
			return errors.New("connection reset")
		})
		s, h := newTestSession(t, ch, 1, newFakeClock())

		require.EqualError(t, s.Kill(), `release backend handle of client "client-1": connection reset`)
		require.NoError(t, s.Kill())
		require.Equal(t, 1, h.ReleaseCalls())
	})

	t.Run("in-flight dispatch completes, new dispatches fail fast", func(t *testing.T) {
		started := make(chan struct{})
		unblock := make(chan struct{})
		ch := backendtest.NewChannel()
		ch.OnDeliver(func(ctx context.Context, params backend.HandleParams, op feed.Operation) error {
			if op.DocumentID == "doc-1" {
				close(started)
				<-unblock
			}
			return nil
		})
		s, h := newTestSession(t, ch, 2, newFakeClock())

		dispatchErr := make(chan error, 1)
		go func() {
			_, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
			dispatchErr <- err
		}()
		<-started

		killed := make(chan error, 1)
		go func() {
			killed <- s.Kill()
		}()
		require.Eventually(t, s.IsKilled, time.Second, time.Millisecond)

		_, err := s.Dispatch(context.Background(), strings.NewReader(twoOps))
		require.ErrorIs(t, err, ErrClientTerminated)

		select {
		case <-killed:
			t.Fatal("kill must wait for in-flight dispatch")
		case <-time.After(time.Millisecond * 50):
		}
		require.False(t, h.Released())

		close(unblock)
		require.NoError(t, <-dispatchErr)
		require.NoError(t, <-killed)
		require.True(t, h.Released())
		require.Len(t, h.Delivered(), 2)
	})
}

func TestSession_KillDuringBodyUpload(t *testing.T) {
	ch := backendtest.NewChannel()
	s, h := newTestSession(t, ch, 1, newFakeClock())

	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	dispatchErr := make(chan error, 1)
	go func() {
		_, err := s.Dispatch(context.Background(), pr)
		dispatchErr <- err
	}()
	_, err := pw.Write([]byte(`{"id": "doc-1", "operation": "put", "fields": {"title": "a"}}` + "\n"))
	require.NoError(t, err)

	killed := make(chan error, 1)
	go func() {
		killed <- s.Kill()
	}()
	select {
	case err = <-killed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("kill must not wait for the request body")
	}
	require.True(t, h.Released())

	require.NoError(t, pw.Close())
	require.ErrorIs(t, <-dispatchErr, ErrClientTerminated)
	require.Empty(t, h.Delivered())
	require.Equal(t, 1, s.permits.Available())
}

func TestSession_IsIdle(t *testing.T) {
	clock := newFakeClock()
	s := New("client-1", nil, newPermits(1), clock.Now)
	created := clock.Now()

	require.False(t, s.IsIdle(time.Minute, created))
	require.False(t, s.IsIdle(time.Minute, created.Add(time.Minute)))
	require.True(t, s.IsIdle(time.Minute, created.Add(time.Minute+time.Nanosecond)))

	s.Touch(created.Add(time.Minute))
	require.False(t, s.IsIdle(time.Minute, created.Add(time.Minute*2)))
	require.True(t, s.IsIdle(time.Minute, created.Add(time.Minute*3)))
}
