/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a part of the process with its own lifecycle: the HTTP server, the gateway, the profiling server.
type Unit interface {
	// Start runs the unit. It may return right away or block for the unit's whole lifetime.
	// A failure is reported by writing to fatalErr, which must not be used after Start returns.
	// Stop may be called whether Start succeeded, failed or is still running.
	Start(fatalErr chan<- error)

	// Stop halts the unit, cleanly when gracefully is true.
	// It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// Drainer is implemented by units that keep releasing resources in the background after Stop returns.
// The channel is closed once that work is done.
type Drainer interface {
	Drained() <-chan struct{}
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
