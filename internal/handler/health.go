// Package handler serves the admin HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"toolkit-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// ConnectionStats reports how many client connections the proxy has served.
type ConnectionStats interface {
	Handled() uint64
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	stats   ConnectionStats
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, stats ConnectionStats) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, stats: stats}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":              "ok",
		"version":             string(h.version),
		"listen_addr":         h.cfg.Server.Addr(),
		"target_host":         h.cfg.Upstream.HostURL,
		"connections_handled": strconv.FormatUint(h.stats.Handled(), 10),
	})
}
