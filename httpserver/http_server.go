/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the HTTP server which exposes the feed endpoint
// together with the /healthz and /metrics system endpoints.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/internal/libinfo"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/service"
)

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Routes register application handlers on the router (e.g. POST /feed).
	Routes []Route
	// ErrorDomain is used for error response formatting.
	ErrorDomain string
	// HealthCheck is a function that performs health check logic.
	HealthCheck HealthCheck
	// MetricsHandler is a custom handler for the /metrics endpoint.
	MetricsHandler http.Handler
	// MetricsNamespace is a namespace for HTTP request metrics.
	MetricsNamespace string
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

// HTTPServer represents a wrapper around http.Server with additional fields and methods.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	HTTPServer      *http.Server
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listenerMu       sync.Mutex
	listener         net.Listener
	listening        chan struct{}
	serveDone        chan struct{}
	metricsCollector *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined logging, metrics collecting,
// recovering after panics, request body limiting and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer {
	metricsCollector := middleware.NewHTTPRequestMetricsCollector(
		middleware.HTTPRequestMetricsCollectorOpts{
			Namespace:   opts.MetricsNamespace,
			ConstLabels: libinfo.AddPrometheusVersionLabel(nil),
		})

	router := newRouter(cfg, logger, opts, metricsCollector)

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		TLS:              cfg.TLS,
		HTTPRouter:       router,
		Logger:           logger,
		ShutdownTimeout:  time.Duration(cfg.Timeouts.Shutdown),
		listener:         opts.Listener,
		listening:        make(chan struct{}),
		serveDone:        make(chan struct{}),
		metricsCollector: metricsCollector,
	}
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	defer close(s.serveDone)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	s.listenerMu.Lock()
	if s.listener == nil {
		listener, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			s.listenerMu.Unlock()
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = listener
	}
	listener := s.listener
	s.listenerMu.Unlock()
	close(s.listening)

	var err error
	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("application HTTP server closed")
}

// Addr returns the address the server listens on. It blocks until the listener is created or ctx is done.
func (s *HTTPServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.listening:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.listener.Addr(), nil
}

// Stop stops application HTTP server (gracefully or not).
// Graceful stop waits for in-flight feed requests until the shutdown timeout expires.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitServeDone()
	return nil
}

func (s *HTTPServer) waitServeDone() {
	select {
	case <-s.listening:
		<-s.serveDone
	default:
		// Start was never called or failed before listening.
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metricsCollector.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.metricsCollector.Unregister()
}
