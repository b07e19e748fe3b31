/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acronis/go-feedgate/log"
)

// DefaultShutdownSignals are the signals New subscribes to.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Opts represents an options for Service.
type Opts struct {
	ShutdownSignals []os.Signal

	// DrainTimeout bounds how long the service waits for a Drainer unit after stopping it.
	// Zero means the service doesn't wait at all.
	DrainTimeout time.Duration
}

// Service runs a unit until a shutdown signal, context cancellation or a fatal error.
// Unit metrics are registered for the service lifetime.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a Service which stops the unit on SIGINT or SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: DefaultShutdownSignals})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{
		Signals: make(chan os.Signal, 1),
		Unit:    unit,
		Logger:  logger,
		Opts:    opts,
	}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until it has to be stopped.
// On a fatal error the unit is expected to have cleaned up after itself, so it's not stopped again.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	fatalErr := make(chan error, 1)
	go s.Unit.Start(fatalErr)

	if len(s.Opts.ShutdownSignals) != 0 {
		signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
		defer signal.Stop(s.Signals)
	}

	select {
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	case err := <-fatalErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	}

	stopErr := s.Unit.Stop(true)
	s.waitDrained()
	if stopErr != nil {
		return fmt.Errorf("stop service gracefully: %w", stopErr)
	}
	return nil
}

func (s *Service) waitDrained() {
	d, ok := s.Unit.(Drainer)
	if !ok || s.Opts.DrainTimeout <= 0 {
		return
	}
	timer := time.NewTimer(s.Opts.DrainTimeout)
	defer timer.Stop()
	select {
	case <-d.Drained():
	case <-timer.C:
		s.Logger.Warn("service units are not drained, giving up",
			log.Duration("drain_timeout", s.Opts.DrainTimeout))
	}
}
