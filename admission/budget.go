/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package admission bounds the number of feed requests which may block on backend delivery at once.
//
// The budget is derived from the thread pool capacity of the host and is handed out gradually
// (soft start) so a freshly started gateway doesn't let all clients block at the same moment.
// The ramp is advanced lazily by incoming requests, there is no background timer.
package admission

import (
	"math"
	"sync"
	"time"

	"github.com/acronis/go-feedgate/log"
)

// FallbackTotal is the budget used when no capacity configuration is provided.
const FallbackTotal = 200

// capacityShare is the part of the thread pool which may be occupied by blocking deliveries.
const capacityShare = 0.4

// CapacityConfig describes the capacity of the host. A nil *CapacityConfig means it's absent.
type CapacityConfig struct {
	MaxThreads       int     `mapstructure:"maxThreads" yaml:"maxThreads" json:"maxThreads"`
	SoftStartSeconds float64 `mapstructure:"softStartSeconds" yaml:"softStartSeconds" json:"softStartSeconds"`
}

// TotalBudget returns the budget which corresponds to the capacity (40% of MaxThreads, but at least 1).
func (c *CapacityConfig) TotalBudget() int {
	if c == nil {
		return FallbackTotal
	}
	total := int(math.Floor(capacityShare * float64(c.MaxThreads)))
	if total < 1 {
		return 1
	}
	return total
}

type rampState struct {
	granted   int
	remaining int
	interval  time.Duration
	next      time.Time
}

// rampStep grants one more permit if the ramp is not finished and its next instant has come.
func rampStep(s rampState, now time.Time) rampState {
	if s.remaining > 0 && !now.Before(s.next) {
		s.granted++
		s.remaining--
		s.next = now.Add(s.interval)
	}
	return s
}

// Budget is the admission budget with soft-start ramp.
type Budget struct {
	mu      sync.Mutex
	state   rampState
	permits *Permits
}

// NewBudget creates a new Budget. The capacity is evaluated once, it's immutable for the Budget's lifetime.
func NewBudget(cfg *CapacityConfig, now time.Time, logger log.FieldLogger) *Budget {
	total := cfg.TotalBudget()

	if cfg == nil {
		logger.Warn("capacity configuration is absent, using fallback admission budget",
			log.Int("total_budget", total))
		return &Budget{state: rampState{granted: total}, permits: newPermits(total, total)}
	}

	if !(cfg.SoftStartSeconds > 0) { // NaN as well
		logger.Info("admission budget is available at once", log.Int("total_budget", total))
		return &Budget{state: rampState{granted: total}, permits: newPermits(total, total)}
	}

	interval := rampInterval(cfg.SoftStartSeconds, total)
	logger.Info("admission budget will be ramped up",
		log.Int("total_budget", total),
		log.Float64("soft_start_seconds", cfg.SoftStartSeconds),
		log.Duration("ramp_interval", interval))
	return &Budget{
		state:   rampState{remaining: total, interval: interval, next: now},
		permits: newPermits(total, 0),
	}
}

// rampInterval spreads softStartSeconds evenly over total permits.
// Intervals not representable as time.Duration are clamped to the longest one.
func rampInterval(softStartSeconds float64, total int) time.Duration {
	ns := softStartSeconds * float64(time.Second) / float64(total)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// Ramp advances the soft-start ramp by at most one permit.
// It's called for every admitted request together with session bookkeeping.
func (b *Budget) Ramp(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := rampStep(b.state, now)
	if next.granted > b.state.granted {
		b.permits.add()
	}
	b.state = next
}

// Permits returns the counter shared by sessions.
func (b *Budget) Permits() *Permits {
	return b.permits
}

// Total returns the total budget.
func (b *Budget) Total() int {
	return b.permits.Total()
}

// RampRemaining returns the number of permits which are not granted by the ramp yet.
func (b *Budget) RampRemaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.remaining
}
