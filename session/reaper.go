/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package session

import (
	"context"
	"sync"
	"time"

	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/service"
)

// Default reaper settings.
const (
	DefaultReaperInitialDelay = time.Minute * 16
	DefaultReaperInterval     = time.Minute * 11
	DefaultIdleTimeout        = time.Minute * 10
)

// ReaperConfig configures sweeping of idle sessions.
type ReaperConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	IdleTimeout  time.Duration
}

// DefaultReaperConfig returns ReaperConfig with default values.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		InitialDelay: DefaultReaperInitialDelay,
		Interval:     DefaultReaperInterval,
		IdleTimeout:  DefaultIdleTimeout,
	}
}

type reaperState int

const (
	reaperIdle reaperState = iota
	reaperRunning
	reaperStopped
)

// Reaper periodically evicts idle sessions from the registry.
// Sweeps are driven by a timer and don't depend on traffic. Once stopped, the reaper cannot be started again.
type Reaper struct {
	registry *Registry
	cfg      ReaperConfig
	logger   log.FieldLogger
	worker   *service.PeriodicWorker

	mu     sync.Mutex
	state  reaperState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a new Reaper. It doesn't start sweeping until Start is called.
func NewReaper(registry *Registry, cfg ReaperConfig, logger log.FieldLogger) *Reaper {
	r := &Reaper{registry: registry, cfg: cfg, logger: logger}
	r.worker = service.NewPeriodicWorker(service.WorkerFunc(r.sweep), cfg.Interval, logger,
		service.PeriodicWorkerOpts{Name: "session_reaper", InitialDelay: cfg.InitialDelay, ContinueOnPanic: true})
	return r
}

// Start starts sweeping in a separate goroutine. Starting a running reaper is a no-op.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case reaperRunning:
		return nil
	case reaperStopped:
		return ErrReaperStopped
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = reaperRunning
	go func() {
		defer close(r.done)
		_ = r.worker.Run(ctx)
	}()
	return nil
}

// Stop stops sweeping and waits until the current sweep (if any) is finished.
// Stopping is final, it may be called many times.
func (r *Reaper) Stop() {
	r.mu.Lock()
	prev := r.state
	r.state = reaperStopped
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if prev != reaperRunning {
		return
	}
	cancel()
	<-done
}

// Sweep evicts idle sessions once and returns their number.
func (r *Reaper) Sweep() int {
	return r.registry.EvictIdle(r.cfg.IdleTimeout, r.registry.clock())
}

func (r *Reaper) sweep(ctx context.Context) error {
	r.Sweep()
	return nil
}
