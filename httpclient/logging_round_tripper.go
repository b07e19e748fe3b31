/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// RequestType is used in the log message and in the name of the time slot.
	RequestType string

	// LoggerProvider returns a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Logger is used when LoggerProvider returns nil.
	Logger log.FieldLogger

	// Mode of logging. LoggingModeAll is used by default.
	Mode LoggingMode

	// SlowRequestThreshold is a duration after which a successful request is logged with the warning level.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper implements http.RoundTripper and logs outgoing requests.
// If the request context carries middleware.LoggingParams,
// the elapsed time is also added to the time slots of the incoming request.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates a new LoggingRoundTripper.
func NewLoggingRoundTripper(delegate http.RoundTripper, opts LoggingRoundTripperOpts) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	var logger log.FieldLogger
	if rt.Opts.LoggerProvider != nil {
		logger = rt.Opts.LoggerProvider(ctx)
	} else {
		logger = middleware.GetLoggerFromContext(ctx)
	}
	if logger == nil {
		logger = rt.Opts.Logger
	}
	return logger
}

// RoundTrip executes a single HTTP transaction and logs it.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", rt.Opts.RequestType), elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if rt.Opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.String("request_type", rt.Opts.RequestType),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}
	msg := fmt.Sprintf("external request %s %s completed in %.3fs", r.Method, r.URL.String(), elapsed.Seconds())

	switch {
	case err != nil:
		logger.Error(msg, append(fields, log.Error(err))...)
	case failed || slow:
		logger.Warn(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
	return resp, err
}
