/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"go.uber.org/atomic"
)

// Permits is a lock-free counter of permits shared by all client sessions.
// One permit allows one concurrent blocking delivery to the backend.
// The number of available permits never goes below zero and never exceeds the total.
type Permits struct {
	total     int32
	available atomic.Int32
}

func newPermits(total, available int) *Permits {
	p := &Permits{total: int32(total)}
	p.available.Store(int32(available))
	return p
}

// TryAcquire takes one permit if any is available. It never blocks.
func (p *Permits) TryAcquire() bool {
	for {
		cur := p.available.Load()
		if cur <= 0 {
			return false
		}
		if p.available.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Release returns one permit. Releasing when all permits are available is a no-op.
func (p *Permits) Release() {
	p.add()
}

// Available returns the number of permits which may be acquired right now.
func (p *Permits) Available() int {
	return int(p.available.Load())
}

// Total returns the upper bound of available permits.
func (p *Permits) Total() int {
	return int(p.total)
}

func (p *Permits) add() bool {
	for {
		cur := p.available.Load()
		if cur >= p.total {
			return false
		}
		if p.available.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}
