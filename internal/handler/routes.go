package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"toolkit-proxy-go/internal/config"
	"toolkit-proxy-go/internal/metrics"
)

// RegisterRoutes wires all admin route handlers onto the Echo instance.
// The metrics endpoint is only mounted when metrics are enabled.
func RegisterRoutes(e *echo.Echo, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
