/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-feedgate/log"
)

// ErrPeriodicWorkerStop may be returned by the worker to finish the PeriodicWorker loop without an error.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

const panicStackSize = 8192

// Worker does one piece of background work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters of PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is logged in the "worker" field of every entry.
	Name string

	// InitialDelay is the delay before the first run. Subsequent runs are separated by the interval.
	InitialDelay time.Duration

	// ContinueOnPanic makes the loop survive a panic of a single run.
	// The panic is logged with a stack and treated as an error of that run.
	ContinueOnPanic bool
}

// PeriodicWorker runs a worker on a timer until the context is done.
// An error of a run is logged and doesn't stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	opts     PeriodicWorkerOpts
	logger   log.FieldLogger
	runs     atomic.Int64
}

// NewPeriodicWorker creates a PeriodicWorker.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts) *PeriodicWorker {
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{worker: worker, interval: interval, opts: opts, logger: logger}
}

// Runs returns the number of finished runs.
func (pw *PeriodicWorker) Runs() int64 {
	return pw.runs.Load()
}

// Run blocks until ctx is done or the worker returns ErrPeriodicWorkerStop.
// Without ContinueOnPanic a panic of the worker is logged and re-raised.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval", pw.interval))
	defer pw.logger.Info("periodic worker stopped", log.Int64("runs", pw.runs.Load()))

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := pw.runOnce(ctx)
		pw.runs.Inc()
		switch {
		case errors.Is(err, ErrPeriodicWorkerStop):
			return nil
		case err != nil:
			pw.logger.Error("periodic worker run failed", log.Error(err))
		}
		timer.Reset(pw.interval)
	}
}

func (pw *PeriodicWorker) runOnce(ctx context.Context) (err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		stack := make([]byte, panicStackSize)
		stack = stack[:runtime.Stack(stack, false)]
		pw.logger.Error("periodic worker panicked", log.String("panic", fmt.Sprint(p)), log.Bytes("stack", stack))
		if !pw.opts.ContinueOnPanic {
			panic(p)
		}
		err = fmt.Errorf("worker panicked: %v", p)
	}()
	return pw.worker.Run(ctx)
}
