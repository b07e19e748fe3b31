/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"sync"

	"go.uber.org/multierr"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit
}

var (
	_ Unit              = (*CompositeUnit)(nil)
	_ Drainer           = (*CompositeUnit)(nil)
	_ MetricsRegisterer = (*CompositeUnit)(nil)
)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start starts all units concurrently and returns when every Start call has returned
// or as soon as some unit fails.
//
// On a failure the rest of the units are stopped non-gracefully. The failure together with
// the stop errors is combined (see multierr.Errors) and sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	results := make(chan error, len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				results <- err
			default:
				results <- nil
			}
		}(u)
	}

	for range cu.Units {
		if err := <-results; err != nil {
			fatalErr <- multierr.Append(err, cu.Stop(false))
			return
		}
	}
}

// Stop stops all units concurrently and combines their errors.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i, u := range cu.Units {
		go func(i int, u Unit) {
			defer wg.Done()
			errs[i] = u.Stop(gracefully)
		}(i, u)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// Drained returns a channel that is closed when every Drainer unit is drained.
// Units that are not Drainers are considered drained.
func (cu *CompositeUnit) Drained() <-chan struct{} {
	var pending []<-chan struct{}
	for _, u := range cu.Units {
		if d, ok := u.(Drainer); ok {
			pending = append(pending, d.Drained())
		}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range pending {
			<-ch
		}
	}()
	return done
}

// MustRegisterMetrics registers metrics of the units that have them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of the units that have them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}
