/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-feedgate/httpserver/middleware"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/restapi"
)

// StatusClientClosedRequest is the non-standard status (introduced by Nginx) written when the client
// went away before the health-check finished.
const StatusClientClosedRequest = 499

// HealthCheckStatus is the health of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps component names to their statuses.
type HealthCheckResult map[string]HealthCheckStatus

// Healthy reports whether all components are OK. An empty result is healthy.
func (r HealthCheckResult) Healthy() bool {
	for _, status := range r {
		if status != HealthCheckStatusOK {
			return false
		}
	}
	return true
}

// HealthCheck collects the statuses of the components, e.g. the gateway fails once it's shutting down.
type HealthCheck func(ctx context.Context) (HealthCheckResult, error)

const (
	healthStatusOK   = "ok"
	healthStatusFail = "fail"
)

type healthCheckResponseData struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves GET /healthz: 200 when all components are OK and 503 otherwise.
type HealthCheckHandler struct {
	check HealthCheck
}

// NewHealthCheckHandler creates a HealthCheckHandler. A nil check reports no components.
func NewHealthCheckHandler(check HealthCheck) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{check: check}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	result, err := h.check(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("health-check is canceled", log.Error(err))
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		logger.Error("health-check failed", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	data := healthCheckResponseData{Status: healthStatusOK, Components: make(map[string]bool, len(result))}
	for name, status := range result {
		data.Components[name] = status == HealthCheckStatusOK
	}
	statusCode := http.StatusOK
	if !result.Healthy() {
		data.Status = healthStatusFail
		statusCode = http.StatusServiceUnavailable
	}
	restapi.RespondCodeAndJSON(rw, statusCode, data, logger)
}
