/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type reaperTestConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	MaxThreads  int
	HasCapacity bool
}

func (c *reaperTestConfig) KeyPrefix() string { return "gateway" }

func (c *reaperTestConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("reaper.interval", "11m")
	dp.SetDefault("reaper.idleTimeout", time.Minute*10)
}

func (c *reaperTestConfig) Set(dp DataProvider) (err error) {
	if c.Interval, err = dp.GetDuration("reaper.interval"); err != nil {
		return err
	}
	if c.IdleTimeout, err = dp.GetDuration("reaper.idleTimeout"); err != nil {
		return err
	}
	if c.HasCapacity = dp.IsSet("capacity.maxThreads"); c.HasCapacity {
		if c.MaxThreads, err = dp.GetInt("capacity.maxThreads"); err != nil {
			return err
		}
		if c.MaxThreads <= 0 {
			return dp.WrapKeyErr("capacity.maxThreads", errors.New("must be positive"))
		}
	}
	return nil
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &reaperTestConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(""), DataTypeYAML, cfg))
		require.Equal(t, time.Minute*11, cfg.Interval)
		require.Equal(t, time.Minute*10, cfg.IdleTimeout)
		require.False(t, cfg.HasCapacity)
	})

	t.Run("values from yaml", func(t *testing.T) {
		data := `
gateway:
  reaper:
    interval: 30s
  capacity:
    maxThreads: 500
`
		cfg := &reaperTestConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), DataTypeYAML, cfg))
		require.Equal(t, time.Second*30, cfg.Interval)
		require.True(t, cfg.HasCapacity)
		require.Equal(t, 500, cfg.MaxThreads)
	})

	t.Run("error contains full key", func(t *testing.T) {
		data := `{"gateway": {"capacity": {"maxThreads": -1}}}`
		cfg := &reaperTestConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), DataTypeJSON, cfg)
		require.EqualError(t, err, "gateway.capacity.maxThreads: must be positive")
	})
}

func TestTimeDuration_UnmarshalJSON(t *testing.T) {
	var d TimeDuration
	require.NoError(t, d.UnmarshalJSON([]byte(`"16m"`)))
	require.Equal(t, TimeDuration(time.Minute*16), d)
	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	require.Equal(t, TimeDuration(1000), d)
	require.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
