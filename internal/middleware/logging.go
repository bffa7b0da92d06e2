// Package middleware provides Echo middleware for the admin server.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// probePaths are polled by orchestrators and logged at debug only.
var probePaths = map[string]bool{"/healthz": true}

// RequestLogger logs admin requests. Liveness probes go to debug, failed
// requests to warn and everything else to info.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "admin_http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil {
				status = http.StatusInternalServerError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			level := slog.LevelInfo
			switch {
			case err != nil || status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case probePaths[c.Path()]:
				level = slog.LevelDebug
			}

			attrs := []any{
				"method", c.Request().Method,
				"route", c.Path(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if err != nil {
				attrs = append(attrs, "err", err)
			}
			logger.Log(c.Request().Context(), level, "admin request", attrs...)
			return err
		}
	}
}
