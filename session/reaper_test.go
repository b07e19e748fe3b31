/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/log"
)

func TestReaper(t *testing.T) {
	t.Run("idle sessions are evicted without traffic", func(t *testing.T) {
		f := newRegistryFixture()
		idle := f.mustGetOrCreate(t, "idle")

		reaper := NewReaper(f.registry, ReaperConfig{
			InitialDelay: time.Millisecond * 10,
			Interval:     time.Millisecond * 10,
			IdleTimeout:  time.Minute,
		}, log.NewDisabledLogger())
		require.NoError(t, reaper.Start())
		defer reaper.Stop()

		time.Sleep(time.Millisecond * 50)
		require.Equal(t, 1, f.registry.Len())

		f.clock.Advance(time.Minute * 2)
		require.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second*3, time.Millisecond*10)
		require.True(t, idle.IsKilled())
	})

	t.Run("initial delay", func(t *testing.T) {
		f := newRegistryFixture()
		f.mustGetOrCreate(t, "idle")
		f.clock.Advance(time.Hour)

		reaper := NewReaper(f.registry, ReaperConfig{
			InitialDelay: time.Hour,
			Interval:     time.Millisecond,
			IdleTimeout:  time.Minute,
		}, log.NewDisabledLogger())
		require.NoError(t, reaper.Start())
		time.Sleep(time.Millisecond * 50)
		reaper.Stop()
		require.Equal(t, 1, f.registry.Len())
	})

	t.Run("sweep", func(t *testing.T) {
		f := newRegistryFixture()
		f.mustGetOrCreate(t, "a")
		f.mustGetOrCreate(t, "b")
		reaper := NewReaper(f.registry, DefaultReaperConfig(), log.NewDisabledLogger())

		f.clock.Advance(DefaultIdleTimeout)
		require.Equal(t, 0, reaper.Sweep())
		f.clock.Advance(time.Second)
		require.Equal(t, 2, reaper.Sweep())
	})

	t.Run("stopped reaper cannot be restarted", func(t *testing.T) {
		reaper := NewReaper(newRegistryFixture().registry, DefaultReaperConfig(), log.NewDisabledLogger())
		require.NoError(t, reaper.Start())
		require.NoError(t, reaper.Start())
		reaper.Stop()
		reaper.Stop()
		require.ErrorIs(t, reaper.Start(), ErrReaperStopped)
	})

	t.Run("stop before start", func(t *testing.T) {
		reaper := NewReaper(newRegistryFixture().registry, DefaultReaperConfig(), log.NewDisabledLogger())
		reaper.Stop()
		require.ErrorIs(t, reaper.Start(), ErrReaperStopped)
	})
}

func TestDefaultReaperConfig(t *testing.T) {
	require.Equal(t, ReaperConfig{
		InitialDelay: time.Minute * 16,
		Interval:     time.Minute * 11,
		IdleTimeout:  time.Minute * 10,
	}, DefaultReaperConfig())
}
