/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var metricsResponseErrors *prometheus.CounterVec

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
	metricsLabelResponseStatus      = "status"
)

// MustInitAndRegisterMetrics creates the error responses counter and registers it in the default registry.
// Until it's called errors are not counted.
func MustInitAndRegisterMetrics(namespace string) {
	metricsResponseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "Number of error responses by domain, code and HTTP status.",
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode, metricsLabelResponseStatus})
	prometheus.MustRegister(metricsResponseErrors)
}

// UnregisterMetrics unregisters the error responses counter.
func UnregisterMetrics() {
	if metricsResponseErrors != nil {
		prometheus.Unregister(metricsResponseErrors)
	}
}

func countErrorResponse(httpStatusCode int, err *Error) {
	if metricsResponseErrors == nil {
		return
	}
	metricsResponseErrors.With(prometheus.Labels{
		metricsLabelResponseErrorDomain: err.Domain,
		metricsLabelResponseErrorCode:   err.Code,
		metricsLabelResponseStatus:      strconv.Itoa(httpStatusCode),
	}).Inc()
}
