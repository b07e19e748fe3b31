/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/acronis/go-feedgate/admission"
	"github.com/acronis/go-feedgate/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newPermits returns permits with the given total, all of them available.
func newPermits(total int) *admission.Permits {
	cfg := &admission.CapacityConfig{MaxThreads: (total*5 + 1) / 2}
	return admission.NewBudget(cfg, time.Now(), log.NewDisabledLogger()).Permits()
}
