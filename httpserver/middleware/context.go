/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/acronis/go-feedgate/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyLoggingParams
	ctxKeyRequestStartTime
)

// fromContext returns the zero value of T if the key is absent.
func fromContext[T any](ctx context.Context, key ctxKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// NewContextWithRequestID returns a context carrying the X-Request-ID of the request.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext returns the X-Request-ID put by RequestID middleware.
// Outgoing backend requests forward it.
func GetRequestIDFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxKeyRequestID)
}

// NewContextWithInternalRequestID returns a context carrying the id generated by the gateway for the request.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return context.WithValue(ctx, ctxKeyInternalRequestID, internalRequestID)
}

// GetInternalRequestIDFromContext returns the id generated by the gateway for the request.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return fromContext[string](ctx, ctxKeyInternalRequestID)
}

// NewContextWithLogger returns a context carrying the request logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLoggerFromContext returns the request logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return fromContext[log.FieldLogger](ctx, ctxKeyLogger)
}

// NewContextWithLoggingParams returns a context carrying the params handlers use to extend the request log entry.
func NewContextWithLoggingParams(ctx context.Context, loggingParams *LoggingParams) context.Context {
	return context.WithValue(ctx, ctxKeyLoggingParams, loggingParams)
}

// GetLoggingParamsFromContext returns the logging params or nil.
func GetLoggingParamsFromContext(ctx context.Context) *LoggingParams {
	return fromContext[*LoggingParams](ctx, ctxKeyLoggingParams)
}

// NewContextWithRequestStartTime returns a context carrying the time the router got the request.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyRequestStartTime, startTime)
}

// GetRequestStartTimeFromContext returns the request start time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return fromContext[time.Time](ctx, ctxKeyRequestStartTime)
}
