/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"context"

	"github.com/acronis/go-feedgate/httpserver"
)

// HealthCheckComponent is the name of the gateway in health-check results.
const HealthCheckComponent = "gateway"

// HealthCheck returns a health-check which fails once the gateway is shutting down.
func (g *Gateway) HealthCheck() httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if g.IsShuttingDown() {
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{HealthCheckComponent: status}, nil
	}
}
