/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/restapi"
)

// System endpoints. They are not counted by the request metrics.
const (
	EndpointMetrics = "/metrics"
	EndpointHealthz = "/healthz"
)

var systemEndpoints = []string{EndpointMetrics, EndpointHealthz}

// Route registers application handlers on the router.
type Route = func(router chi.Router)

// newRouter builds the router: common middlewares first, then the system endpoints and the routes.
// Unknown paths and methods get restapi errors of the domain.
func newRouter(cfg *Config, logger log.FieldLogger, opts Opts, metricsCollector *middleware.HTTPRequestMetricsCollector) chi.Router {
	router := chi.NewRouter()

	router.Use(
		requestStartTime,
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
			RequestStart:           cfg.Log.RequestStart,
			RequestHeaders:         cfg.Log.RequestHeaders,
			ExcludedEndpoints:      cfg.Log.ExcludedEndpoints,
			AddRequestInfoToLogger: cfg.Log.AddRequestInfoToLogger,
			SlowRequestThreshold:   time.Duration(cfg.Log.SlowRequestThreshold),
		}),
		middleware.Recovery(opts.ErrorDomain),
		middleware.HTTPRequestMetrics(metricsCollector, GetChiRoutePattern,
			middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}),
	)
	if cfg.Limits.MaxBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize), opts.ErrorDomain))
	}

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, EndpointMetrics, metricsHandler)
	router.Method(http.MethodGet, EndpointHealthz, NewHealthCheckHandler(opts.HealthCheck))

	for _, route := range opts.Routes {
		route(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound), requestLogger(r, logger))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondError(rw, http.StatusMethodNotAllowed,
			restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed),
			requestLogger(r, logger))
	})
	return router
}

// requestStartTime stores the moment the router got the request, so the access log duration
// includes the time spent in the middlewares.
func requestStartTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
	})
}

func requestLogger(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}

// GetChiRoutePattern returns the chi route pattern of the request without the trailing slash ("/api/feed/{version}").
// The pattern is known only after routing, so for middlewares running before it the route is matched again.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}
	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
