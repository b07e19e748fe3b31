/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/log/logtest"
)

var testStartTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCapacityConfig_TotalBudget(t *testing.T) {
	tests := []struct {
		name string
		cfg  *CapacityConfig
		want int
	}{
		{"absent", nil, FallbackTotal},
		{"40 percent", &CapacityConfig{MaxThreads: 500}, 200},
		{"floor", &CapacityConfig{MaxThreads: 12}, 4},
		{"at least one", &CapacityConfig{MaxThreads: 2}, 1},
		{"zero threads", &CapacityConfig{MaxThreads: 0}, 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.cfg.TotalBudget())
		})
	}
}

func TestNewBudget(t *testing.T) {
	t.Run("absent capacity", func(t *testing.T) {
		logger := logtest.NewRecorder()
		b := NewBudget(nil, testStartTime, logger)
		require.Equal(t, FallbackTotal, b.Total())
		require.Equal(t, FallbackTotal, b.Permits().Available())
		require.Equal(t, 0, b.RampRemaining())

		entry, found := logger.FindEntry("capacity configuration is absent, using fallback admission budget")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)

		b.Ramp(testStartTime.Add(time.Hour))
		require.Equal(t, FallbackTotal, b.Permits().Available())
	})

	t.Run("soft start disabled", func(t *testing.T) {
		b := NewBudget(&CapacityConfig{MaxThreads: 10}, testStartTime, log.NewDisabledLogger())
		require.Equal(t, 4, b.Total())
		require.Equal(t, 4, b.Permits().Available())
		require.Equal(t, 0, b.RampRemaining())
	})

	t.Run("soft start enabled", func(t *testing.T) {
		b := NewBudget(&CapacityConfig{MaxThreads: 10, SoftStartSeconds: 2}, testStartTime, log.NewDisabledLogger())
		require.Equal(t, 4, b.Total())
		require.Equal(t, 0, b.Permits().Available())
		require.Equal(t, 4, b.RampRemaining())
	})
}

func TestRampInterval(t *testing.T) {
	require.Equal(t, time.Millisecond*500, rampInterval(2, 4))
	require.Equal(t, time.Duration(math.MaxInt64), rampInterval(1e12, 1))
	require.Equal(t, time.Duration(math.MaxInt64), rampInterval(math.Inf(1), 4))
}

func TestBudget_HugeSoftStart(t *testing.T) {
	b := NewBudget(&CapacityConfig{MaxThreads: 10, SoftStartSeconds: 1e12}, testStartTime, log.NewDisabledLogger())
	b.Ramp(testStartTime)
	require.Equal(t, 1, b.Permits().Available())
	b.Ramp(testStartTime.Add(time.Hour * 24 * 365))
	require.Equal(t, 1, b.Permits().Available())
	require.Equal(t, 3, b.RampRemaining())
}

func TestBudget_Ramp(t *testing.T) {
	t.Run("first request is granted immediately", func(t *testing.T) {
		b := NewBudget(&CapacityConfig{MaxThreads: 10, SoftStartSeconds: 2}, testStartTime, log.NewDisabledLogger())
		b.Ramp(testStartTime)
		require.Equal(t, 1, b.Permits().Available())
	})

	t.Run("one permit per elapsed interval", func(t *testing.T) {
		// total=4, interval=500ms
		b := NewBudget(&CapacityConfig{MaxThreads: 10, SoftStartSeconds: 2}, testStartTime, log.NewDisabledLogger())
		b.Ramp(testStartTime)
		b.Ramp(testStartTime.Add(time.Millisecond * 100))
		b.Ramp(testStartTime.Add(time.Millisecond * 499))
		require.Equal(t, 1, b.Permits().Available())

		b.Ramp(testStartTime.Add(time.Millisecond * 500))
		require.Equal(t, 2, b.Permits().Available())

		// Lazy ramp: a long pause grants only one permit.
		b.Ramp(testStartTime.Add(time.Second * 10))
		require.Equal(t, 3, b.Permits().Available())
		require.Equal(t, 1, b.RampRemaining())
	})

	t.Run("ramp reaches total after soft start with enough requests", func(t *testing.T) {
		const softStart = 3.0
		b := NewBudget(&CapacityConfig{MaxThreads: 250, SoftStartSeconds: softStart}, testStartTime, log.NewDisabledLogger())
		total := b.Total()
		require.Equal(t, 100, total)

		// Requests arrive every 10ms, which is more often than the 30ms ramp interval.
		end := testStartTime.Add(time.Duration(softStart*float64(time.Second)) + time.Millisecond*100)
		for now := testStartTime; !now.After(end); now = now.Add(time.Millisecond * 10) {
			b.Ramp(now)
		}
		require.Equal(t, total, b.Permits().Available())
		require.Equal(t, 0, b.RampRemaining())

		b.Ramp(end.Add(time.Hour))
		require.Equal(t, total, b.Permits().Available())
	})

	t.Run("monotonic and bounded with concurrent usage", func(t *testing.T) {
		b := NewBudget(&CapacityConfig{MaxThreads: 20, SoftStartSeconds: 1}, testStartTime, log.NewDisabledLogger())
		total := b.Total()
		rnd := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data
		now := testStartTime
		held := 0
		prevGranted := 0
		for i := 0; i < 1000; i++ {
			now = now.Add(time.Duration(rnd.Intn(50)) * time.Millisecond)
			b.Ramp(now)
			switch {
			case rnd.Intn(2) == 0 && b.Permits().TryAcquire():
				held++
			case held > 0:
				b.Permits().Release()
				held--
			}
			available := b.Permits().Available()
			require.GreaterOrEqual(t, available, 0)
			require.LessOrEqual(t, available, total)

			granted := total - b.RampRemaining()
			require.GreaterOrEqual(t, granted, prevGranted)
			require.Equal(t, granted, available+held)
			prevGranted = granted
		}
	})
}

func TestRampStep(t *testing.T) {
	s := rampState{remaining: 2, interval: time.Second, next: testStartTime}

	s = rampStep(s, testStartTime.Add(-time.Millisecond))
	require.Equal(t, 0, s.granted)

	s = rampStep(s, testStartTime)
	require.Equal(t, rampState{granted: 1, remaining: 1, interval: time.Second, next: testStartTime.Add(time.Second)}, s)

	s = rampStep(s, testStartTime.Add(time.Second*5))
	require.Equal(t, 2, s.granted)
	require.Equal(t, 0, s.remaining)

	finished := rampStep(s, testStartTime.Add(time.Hour))
	require.Equal(t, s, finished)
}
