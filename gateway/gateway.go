/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package gateway admits feed requests of many concurrent clients and forwards them to the backend.
//
// Every client is identified by the X-Feed-Client-ID header and gets its own session with a backend handle.
// The number of requests which may block on backend delivery at the same time is bounded by the admission budget.
package gateway

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/acronis/go-feedgate/admission"
	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/feed"
	"github.com/acronis/go-feedgate/httpserver"
	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/restapi"
	"github.com/acronis/go-feedgate/service"
	"github.com/acronis/go-feedgate/session"
)

// Request headers.
const (
	HeaderClientID = "X-Feed-Client-ID"
	HeaderTimeout  = "X-Feed-Timeout"
)

// APIPath is the path of the feed endpoint.
const APIPath = "/api/feed/v3/"

// Error codes.
const (
	ErrCodeMissingClientID       = "missingClientID"
	ErrCodeUnknownClient         = "unknownClient"
	ErrCodeMalformedPayload      = "malformedPayload"
	ErrCodeTooManyFeedingThreads = "tooManyFeedingThreads"
	ErrCodeSessionCreationFailed = "sessionCreationFailed"
	ErrCodeShuttingDown          = "gatewayShuttingDown"
)

// Error messages.
const (
	ErrMessageMissingClientID       = "Client id is missing in " + HeaderClientID + " header."
	ErrMessageUnknownClient         = "Client is unknown or its session has been terminated."
	ErrMessageMalformedPayload      = "Feed payload is malformed."
	ErrMessageTooManyFeedingThreads = "Too many feeding threads, retry later."
	ErrMessageSessionCreationFailed = "Feeding session cannot be created."
	ErrMessageShuttingDown          = "Gateway is shutting down."
)

// Opts contains optional parameters for constructing Gateway.
type Opts struct {
	// Clock is used for the admission ramp and session activity. time.Now is used by default.
	Clock func() time.Time

	// MetricsNamespace is a prefix for names of Prometheus metrics.
	MetricsNamespace string
}

// Stats is a snapshot of gateway state.
type Stats struct {
	TotalBudget      int  `json:"totalBudget"`
	AvailablePermits int  `json:"availablePermits"`
	RampRemaining    int  `json:"rampRemaining"`
	Sessions         int  `json:"sessions"`
	ShuttingDown     bool `json:"shuttingDown"`
}

// Gateway is an http.Handler which admits feed requests and dispatches them to client sessions.
// It owns the admission budget, the session registry and the reaper.
type Gateway struct {
	cfg     *Config
	channel backend.Channel
	logger  log.FieldLogger
	clock   func() time.Time

	budget   *admission.Budget
	registry *session.Registry
	reaper   *session.Reaper
	metrics  *metricsCollector

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}
}

var _ http.Handler = (*Gateway)(nil)
var _ service.Unit = (*Gateway)(nil)
var _ service.MetricsRegisterer = (*Gateway)(nil)
var _ service.Drainer = (*Gateway)(nil)

// New creates a new Gateway and starts sweeping of idle sessions.
func New(cfg *Config, channel backend.Channel, logger log.FieldLogger, opts Opts) (*Gateway, error) {
	if channel == nil {
		return nil, errors.New("backend channel is required")
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("default timeout must be positive, got %s", time.Duration(cfg.DefaultTimeout))
	}
	if cfg.Reaper.Interval <= 0 || cfg.Reaper.IdleTimeout <= 0 {
		return nil, fmt.Errorf("reaper interval and idle timeout must be positive, got %s and %s",
			time.Duration(cfg.Reaper.Interval), time.Duration(cfg.Reaper.IdleTimeout))
	}
	if cfg.Reaper.InitialDelay < 0 {
		return nil, fmt.Errorf("reaper initial delay cannot be negative, got %s", time.Duration(cfg.Reaper.InitialDelay))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	budget := admission.NewBudget(cfg.Capacity, clock(), logger)
	registry := session.NewRegistry(session.RegistryOpts{
		OnAdmit: budget.Ramp,
		Clock:   clock,
		Logger:  logger,
	})
	g := &Gateway{
		cfg:          cfg,
		channel:      channel,
		logger:       logger,
		clock:        clock,
		budget:       budget,
		registry:     registry,
		reaper:       session.NewReaper(registry, cfg.Reaper.sessionConfig(), logger),
		shutdownDone: make(chan struct{}),
	}
	g.metrics = newMetricsCollector(opts.MetricsNamespace, g)

	if err := g.reaper.Start(); err != nil {
		return nil, fmt.Errorf("start reaper: %w", err)
	}
	return g, nil
}

// Route returns the route which serves the feed endpoint.
func (g *Gateway) Route() httpserver.Route {
	return func(router chi.Router) {
		router.Method(http.MethodPost, APIPath, g)
	}
}

// ServeHTTP admits a feed request and dispatches it to the session of the client.
func (g *Gateway) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = g.logger
	}

	clientID := strings.TrimSpace(r.Header.Get(HeaderClientID))
	if clientID == "" {
		g.respondError(rw, http.StatusBadRequest, ErrCodeMissingClientID, ErrMessageMissingClientID, logger)
		return
	}
	logger = logger.With(log.String("client_id", clientID))

	if g.closed.Load() {
		g.respondError(rw, http.StatusServiceUnavailable, ErrCodeShuttingDown, ErrMessageShuttingDown, logger)
		return
	}

	timeout := g.parseTimeout(r.Header.Get(HeaderTimeout))
	sess, _, err := g.registry.GetOrCreate(clientID, func() (*session.Session, error) {
		handle, openErr := g.channel.Open(backend.HandleParams{ClientID: clientID, Timeout: timeout})
		if openErr != nil {
			return nil, openErr
		}
		return session.New(clientID, handle, g.budget.Permits(), g.clock), nil
	})
	if err != nil {
		g.handleError(rw, err, logger)
		return
	}

	res, err := sess.Dispatch(r.Context(), r.Body)
	if err != nil {
		g.handleError(rw, err, logger)
		return
	}
	g.metrics.Requests.WithLabelValues(requestResultOK).Inc()
	restapi.RespondJSON(rw, res, logger)
}

// parseTimeout parses the optional timeout header (in seconds).
// Absent, invalid or non-positive values are ignored and the default timeout is used.
func (g *Gateway) parseTimeout(val string) time.Duration {
	if val == "" {
		return time.Duration(g.cfg.DefaultTimeout)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil || secs <= 0 || math.IsInf(secs, 0) || math.IsNaN(secs) || secs > math.MaxInt64/float64(time.Second) {
		return time.Duration(g.cfg.DefaultTimeout)
	}
	return time.Duration(secs * float64(time.Second))
}

func (g *Gateway) handleError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var tooLargeErr *restapi.RequestBodyTooLargeError
	switch {
	case errors.Is(err, session.ErrClientTerminated):
		g.respondError(rw, http.StatusBadRequest, ErrCodeUnknownClient, ErrMessageUnknownClient, logger)

	case errors.As(err, &tooLargeErr):
		reqErr := restapi.NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)
		g.metrics.Requests.WithLabelValues(requestResultTooLarge).Inc()
		restapi.RespondMalformedRequestError(rw, g.cfg.ErrorDomain, reqErr, logger)

	case errors.Is(err, feed.ErrMalformedPayload):
		apiErr := restapi.NewError(g.cfg.ErrorDomain, ErrCodeMalformedPayload, ErrMessageMalformedPayload).
			AddContext("reason", err.Error())
		g.metrics.Requests.WithLabelValues(ErrCodeMalformedPayload).Inc()
		restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)

	case errors.Is(err, session.ErrResourceExhausted):
		g.metrics.Requests.WithLabelValues(ErrCodeTooManyFeedingThreads).Inc()
		apiErr := restapi.NewError(g.cfg.ErrorDomain, ErrCodeTooManyFeedingThreads, ErrMessageTooManyFeedingThreads)
		restapi.RespondUnavailableError(rw, apiErr, time.Duration(g.cfg.RetryAfter), logger)

	case errors.Is(err, session.ErrRegistryClosed):
		g.metrics.Requests.WithLabelValues(ErrCodeShuttingDown).Inc()
		apiErr := restapi.NewError(g.cfg.ErrorDomain, ErrCodeShuttingDown, ErrMessageShuttingDown)
		restapi.RespondUnavailableError(rw, apiErr, 0, logger)

	case errors.Is(err, session.ErrSessionCreation):
		logger.Error("feeding session creation failed", log.Error(err))
		g.respondError(rw, http.StatusInternalServerError, ErrCodeSessionCreationFailed, ErrMessageSessionCreationFailed, logger)

	default:
		logger.Error("feed request dispatching failed", log.Error(err))
		g.metrics.Requests.WithLabelValues(restapi.ErrCodeInternal).Inc()
		restapi.RespondInternalError(rw, g.cfg.ErrorDomain, logger)
	}
}

func (g *Gateway) respondError(rw http.ResponseWriter, status int, code, message string, logger log.FieldLogger) {
	g.metrics.Requests.WithLabelValues(code).Inc()
	restapi.RespondError(rw, status, restapi.NewError(g.cfg.ErrorDomain, code, message), logger)
}

// Shutdown stops admitting requests and tears the gateway down in the background.
// It returns at once, the returned channel is closed when the reaper is stopped and all sessions are killed.
// Nothing waits for the teardown, so it never delays exit of the process.
// Repeated calls return the same channel.
func (g *Gateway) Shutdown() <-chan struct{} {
	g.shutdownOnce.Do(func() {
		g.closed.Store(true)
		g.logger.Info("gateway is shutting down", log.Int("sessions", g.registry.Len()))
		go g.teardown()
	})
	return g.shutdownDone
}

func (g *Gateway) teardown() {
	defer close(g.shutdownDone)
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error(fmt.Sprintf("panic during gateway teardown: %+v", p))
		}
	}()

	g.reaper.Stop()
	if err := g.registry.KillAllAndClear(); err != nil {
		g.logger.Warn("some client sessions were not killed cleanly", log.Error(err))
	}
	g.logger.Info("gateway is shut down")
}

// IsShuttingDown reports whether Shutdown has been called.
func (g *Gateway) IsShuttingDown() bool {
	return g.closed.Load()
}

// Stats returns the current state of the gateway.
func (g *Gateway) Stats() Stats {
	return Stats{
		TotalBudget:      g.budget.Total(),
		AvailablePermits: g.budget.Permits().Available(),
		RampRemaining:    g.budget.RampRemaining(),
		Sessions:         g.registry.Len(),
		ShuttingDown:     g.closed.Load(),
	}
}

// Start implements service.Unit. The gateway is already running after New.
func (g *Gateway) Start(fatalErr chan<- error) {
	g.logger.Info("gateway is started", log.Int("total_budget", g.budget.Total()))
}

// Stop implements service.Unit. It initiates Shutdown and doesn't wait for sessions to be killed.
func (g *Gateway) Stop(gracefully bool) error {
	g.Shutdown()
	return nil
}

// Drained implements service.Drainer. The channel is closed when the teardown started by Shutdown is over.
func (g *Gateway) Drained() <-chan struct{} {
	return g.shutdownDone
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (g *Gateway) MustRegisterMetrics() {
	g.metrics.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (g *Gateway) UnregisterMetrics() {
	g.metrics.Unregister()
}
