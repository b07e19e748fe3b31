/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestType is used when no request type is specified.
const DefaultRequestType = "default"

const metricsSubsystem = "http_client"

// MetricsCollector collects metrics for outgoing requests.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request with the resulting status.
	RequestDuration(requestType, method, status string, startTime time.Time)
}

// PrometheusMetricsCollector is a MetricsCollector backed by Prometheus.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

// NewPrometheusMetricsCollector creates a new PrometheusMetricsCollector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "A histogram of the outgoing HTTP requests durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type", "method", "status"}),
	}
}

// MustRegister registers the metrics in the Prometheus default registry.
func (c *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations)
}

// Unregister unregisters the metrics from the Prometheus default registry.
func (c *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(c.Durations)
}

// RequestDuration observes the duration of the request with the resulting status.
func (c *PrometheusMetricsCollector) RequestDuration(requestType, method, status string, startTime time.Time) {
	c.Durations.WithLabelValues(requestType, method, status).Observe(time.Since(startTime).Seconds())
}

// MetricsRoundTripper implements http.RoundTripper and measures outgoing requests.
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripper creates a new MetricsRoundTripper.
// Status "0" is reported for requests that failed without a response.
func NewMetricsRoundTripper(delegate http.RoundTripper, requestType string, collector MetricsCollector) *MetricsRoundTripper {
	if requestType == "" {
		requestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, RequestType: requestType, Collector: collector}
}

// RoundTrip executes a single HTTP transaction and measures it.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.RequestDuration(rt.RequestType, r.Method, status, start)
	return resp, err
}
