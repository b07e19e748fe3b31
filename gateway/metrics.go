/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsSubsystem = "feed_gateway"

	metricsLabelResult = "result"

	requestResultOK       = "ok"
	requestResultTooLarge = "requestEntityTooLarge"
)

type metricsCollector struct {
	Requests         *prometheus.CounterVec
	TotalBudget      prometheus.GaugeFunc
	AvailablePermits prometheus.GaugeFunc
	Sessions         prometheus.GaugeFunc
}

func newMetricsCollector(namespace string, g *Gateway) *metricsCollector {
	return &metricsCollector{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "The total number of feed requests by result (ok or error code).",
		}, []string{metricsLabelResult}),
		TotalBudget: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "admission_budget",
			Help:      "The total number of admission permits.",
		}, func() float64 { return float64(g.budget.Total()) }),
		AvailablePermits: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "admission_permits_available",
			Help:      "The number of admission permits which may be taken right now.",
		}, func() float64 { return float64(g.budget.Permits().Available()) }),
		Sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions",
			Help:      "The number of client sessions.",
		}, func() float64 { return float64(g.registry.Len()) }),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *metricsCollector) MustRegister() {
	prometheus.MustRegister(c.Requests, c.TotalBudget, c.AvailablePermits, c.Sessions)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *metricsCollector) Unregister() {
	prometheus.Unregister(c.Sessions)
	prometheus.Unregister(c.AvailablePermits)
	prometheus.Unregister(c.TotalBudget)
	prometheus.Unregister(c.Requests)
}
