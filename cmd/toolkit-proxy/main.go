package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"toolkit-proxy-go/internal/client"
	"toolkit-proxy-go/internal/config"
	"toolkit-proxy-go/internal/handler"
	"toolkit-proxy-go/internal/metrics"
	"toolkit-proxy-go/internal/middleware"
	"toolkit-proxy-go/internal/server"
	"toolkit-proxy-go/internal/service"
	"toolkit-proxy-go/internal/transport"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("toolkit-proxy"),
		kong.Description("Forwarding proxy that rewrites requests for a fixed upstream host."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			client.NewUpstreamClient,
			newProxyService,
			server.NewLoop,
			func(l *server.Loop) handler.ConnectionStats { return l },
			newEcho,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfig, startProxy, startAdmin),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newProxyService(uc *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*service.ProxyService, error) {
	return service.NewProxyService(uc, cfg, logger)
}

func newEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 60 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())

	return e
}

func warnConfig(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
	cfg.WarnUnexposedMetrics(logger)
}

// startProxy binds the client-facing listener and runs the serial loop.
func startProxy(lc fx.Lifecycle, loop *server.Loop, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var ln transport.Listener

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			l, err := transport.Listen(addr)
			if err != nil {
				cancel()
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			ln = l
			logger.Info("proxy running; press ^C to stop",
				"addr", ln.Addr(),
				"target_host", cfg.Upstream.HostURL,
				"max_request_bytes", cfg.Server.MaxRequestBytes,
			)
			go func() {
				defer close(done)
				if err := loop.Serve(ctx, ln); err != nil {
					logger.Error("serve loop error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("shutting down proxy")
			cancel()
			if ln == nil {
				return nil
			}
			_ = ln.Close()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// startAdmin serves health, status and metrics when the admin server is enabled.
func startAdmin(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Admin.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind admin %s: %w", addr, err)
			}
			logger.Info("starting admin server", "addr", addr, "metrics", cfg.Metrics.Enabled)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("admin server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return e.Shutdown(ctx)
		},
	})
}
