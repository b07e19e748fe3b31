/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/acronis/go-feedgate/testutil"
)

// mockUnit blocks in Start until it is stopped, like an HTTP server does.
type mockUnit struct {
	name     string
	startErr error
	stopErr  error
	running  *atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once

	started           atomic.Int32
	stopped           atomic.Int32
	stoppedGracefully atomic.Int32
	registered        atomic.Int32
	unregistered      atomic.Int32
}

func newMockUnit(name string, running *atomic.Int32) *mockUnit {
	return &mockUnit{name: name, running: running, stopCh: make(chan struct{})}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.started.Inc()
	if u.startErr != nil {
		fatalErr <- u.startErr
		return
	}
	u.running.Inc()
	<-u.stopCh
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopped.Inc()
	if gracefully {
		u.stoppedGracefully.Inc()
	}
	u.stopOnce.Do(func() {
		if u.startErr == nil {
			u.running.Dec()
		}
		close(u.stopCh)
	})
	return u.stopErr
}

func (u *mockUnit) MustRegisterMetrics() { u.registered.Inc() }

func (u *mockUnit) UnregisterMetrics() { u.unregistered.Inc() }

// drainingUnit finishes its work in the background after Stop, like the gateway.
type drainingUnit struct {
	*mockUnit
	drained chan struct{}
}

func newDrainingUnit(name string, running *atomic.Int32) *drainingUnit {
	return &drainingUnit{newMockUnit(name, running), make(chan struct{})}
}

func (u *drainingUnit) Drained() <-chan struct{} { return u.drained }

func newMockUnits(n int, running *atomic.Int32) []*mockUnit {
	units := make([]*mockUnit, n)
	for i := range units {
		units[i] = newMockUnit(fmt.Sprintf("unit#%d", i), running)
	}
	return units
}

func asUnits(mocks []*mockUnit) []Unit {
	units := make([]Unit, len(mocks))
	for i := range mocks {
		units[i] = mocks[i]
	}
	return units
}

func startInBackground(u Unit) (fatalErr chan error, exited chan struct{}) {
	fatalErr = make(chan error, 1)
	exited = make(chan struct{})
	go func() {
		defer close(exited)
		u.Start(fatalErr)
	}()
	return fatalErr, exited
}

func TestCompositeUnit_StartAndStop(t *testing.T) {
	t.Run("all units are started and stopped", func(t *testing.T) {
		var running atomic.Int32
		mocks := newMockUnits(50, &running)
		cu := NewCompositeUnit(asUnits(mocks)...)

		fatalErr, exited := startInBackground(cu)
		require.Eventually(t, func() bool { return running.Load() == 50 }, time.Second*3, time.Millisecond*10)

		require.NoError(t, cu.Stop(true))
		require.EqualValues(t, 0, running.Load())
		testutil.RequireClosedWithin(t, exited, time.Second*3)
		require.Empty(t, fatalErr)
		for _, m := range mocks {
			require.EqualValues(t, 1, m.stoppedGracefully.Load(), m.name)
		}
	})

	t.Run("stop errors are combined", func(t *testing.T) {
		var running atomic.Int32
		mocks := newMockUnits(10, &running)
		for i := 0; i < 4; i++ {
			mocks[i].stopErr = fmt.Errorf("%s: stop failed", mocks[i].name)
		}
		cu := NewCompositeUnit(asUnits(mocks)...)

		_, exited := startInBackground(cu)
		require.Eventually(t, func() bool { return running.Load() == 10 }, time.Second*3, time.Millisecond*10)

		err := cu.Stop(true)
		require.Error(t, err)
		require.Len(t, multierr.Errors(err), 4)
		require.EqualValues(t, 0, running.Load())
		testutil.RequireClosedWithin(t, exited, time.Second*3)
	})

	t.Run("failed unit stops the others", func(t *testing.T) {
		var running atomic.Int32
		mocks := newMockUnits(3, &running)
		startErr := errors.New("listen: address already in use")
		mocks[1].startErr = startErr
		mocks[2].stopErr = errors.New("unit#2: stop failed")
		cu := NewCompositeUnit(asUnits(mocks)...)

		fatalErr, exited := startInBackground(cu)
		testutil.RequireClosedWithin(t, exited, time.Second*3)

		require.Len(t, fatalErr, 1)
		err := <-fatalErr
		require.ErrorIs(t, err, startErr)
		require.Len(t, multierr.Errors(err), 2)
		for _, m := range mocks {
			require.EqualValues(t, 1, m.stopped.Load(), m.name)
			require.EqualValues(t, 0, m.stoppedGracefully.Load(), m.name)
		}
	})
}

func TestCompositeUnit_Drained(t *testing.T) {
	var running atomic.Int32
	first := newDrainingUnit("gateway", &running)
	second := newDrainingUnit("another gateway", &running)
	cu := NewCompositeUnit(newMockUnit("server", &running), first, second)

	drained := cu.Drained()
	close(first.drained)
	select {
	case <-drained:
		require.Fail(t, "composite unit is drained before all its units")
	case <-time.After(time.Millisecond * 50):
	}
	close(second.drained)
	testutil.RequireClosedWithin(t, drained, time.Second*3)

	testutil.RequireClosedWithin(t, NewCompositeUnit(newMockUnit("server", &running)).Drained(), time.Second*3)
}

func TestCompositeUnit_Metrics(t *testing.T) {
	var running atomic.Int32
	mocks := newMockUnits(3, &running)
	cu := NewCompositeUnit(asUnits(mocks)...)

	cu.MustRegisterMetrics()
	cu.UnregisterMetrics()
	for _, m := range mocks {
		require.EqualValues(t, 1, m.registered.Load())
		require.EqualValues(t, 1, m.unregistered.Load())
	}
}
