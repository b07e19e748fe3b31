/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional HTTP server exposing pprof endpoints of the gateway process.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/service"
)

// ProfServer serves pprof endpoints under /debug/pprof/.
// It implements service.Unit, so it can be run next to the gateway in a composite unit.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	started atomic.Bool
	done    chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new profiling server.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: time.Second * 5,
		},
		Logger: logger.With(log.String("address", cfg.Address)),
		done:   make(chan struct{}),
	}
}

// Start listens and serves in a blocking way.
// A listen or serve error is sent into fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.done)

	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		s.Logger.Error("profiling HTTP server cannot listen", log.Error(err))
		fatalError <- err
		return
	}

	s.Logger.Info("starting profiling HTTP server...")
	if err = s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	s.Logger.Info("profiling HTTP server closed")
}

// Stop closes the server immediately, profiling requests are not waited for.
// If Start is running, Stop returns after it has returned. A Start called after Stop exits without serving.
func (s *ProfServer) Stop(gracefully bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	if s.started.Load() {
		<-s.done
	}
	return nil
}
