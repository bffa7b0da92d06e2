// Package server runs the accept-serve loop. Connections are handled one at
// a time: the next Accept is not issued until the current connection has
// been closed.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"toolkit-proxy-go/internal/client"
	"toolkit-proxy-go/internal/config"
	"toolkit-proxy-go/internal/metrics"
	"toolkit-proxy-go/internal/service"
	"toolkit-proxy-go/internal/transport"
)

// Forwarder turns decoded request text into response bytes.
type Forwarder interface {
	Forward(ctx context.Context, text string) ([]byte, error)
}

// Loop accepts and serves client connections serially.
type Loop struct {
	forwarder Forwarder
	reader    transport.RequestReader
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	handled atomic.Uint64
}

// NewLoop creates a Loop that reads requests with a single read of
// cfg.Server.MaxRequestBytes. The metrics parameter is optional.
func NewLoop(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Loop {
	l := newLoop(svc, transport.NewSingleReadReader(cfg.Server.MaxRequestBytes), logger, m)
	if cfg.Server.RateLimit.Enabled {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond), 1)
	}
	return l
}

func newLoop(f Forwarder, r transport.RequestReader, logger *slog.Logger, m *metrics.Metrics) *Loop {
	return &Loop{
		forwarder: f,
		reader:    r,
		logger:    logger.With("component", "connection_loop"),
		metrics:   m,
	}
}

// Handled returns the number of connections closed so far.
func (l *Loop) Handled() uint64 {
	return l.handled.Load()
}

// Serve accepts connections from ln until ctx is canceled or ln is closed.
// Failures of individual connections are logged and never end the loop.
func (l *Loop) Serve(ctx context.Context, ln transport.Listener) error {
	l.logger.Info("accepting connections", "addr", ln.Addr())
	var delay time.Duration
	for {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			delay = nextAcceptDelay(delay)
			l.logger.Error("accept failed", "err", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		delay = 0

		l.handle(ctx, conn)
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// nextAcceptDelay doubles the previous accept retry delay, capped at one second.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}

// sleepCtx waits for d and reports false if ctx was canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// handle runs one connection to completion and always closes it.
func (l *Loop) handle(ctx context.Context, conn transport.Conn) {
	start := time.Now()
	remote := conn.RemoteAddr()
	logger := l.logger.With("remote", remote)
	logger.Info("client connected")

	if l.metrics != nil {
		l.metrics.ConnectionsInFlight.Inc()
	}
	outcome := l.safeProcess(ctx, conn, logger)

	if err := conn.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	logger.Info("closed socket", "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())

	if l.metrics != nil {
		l.metrics.ConnectionsInFlight.Dec()
		l.metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()
		l.metrics.ConnectionDuration.Observe(time.Since(start).Seconds())
	}
	l.handled.Add(1)
}

// safeProcess runs process, turning a panic into a logged failure so the
// loop keeps accepting.
func (l *Loop) safeProcess(ctx context.Context, conn transport.Conn, logger *slog.Logger) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while serving connection", "panic", r)
			outcome = metrics.OutcomePanic
		}
	}()
	return l.process(ctx, conn, logger)
}

// process reads, forwards and writes back. It returns the outcome label.
func (l *Loop) process(ctx context.Context, conn transport.Conn, logger *slog.Logger) string {
	raw, err := l.reader.ReadRequest(conn)
	if err != nil {
		logger.Error("read request", "err", err)
		return metrics.OutcomeReadError
	}

	text, err := service.DecodeRequest(raw)
	if err != nil {
		logger.Error("decode request", "err", err)
		return metrics.OutcomeMalformed
	}
	logger.Debug("received", "bytes", len(raw), "text", text)
	if l.metrics != nil {
		l.metrics.InboundMethods.WithLabelValues(metrics.NormalizeMethod(service.RequestMethod(text))).Inc()
	}

	out, err := l.forwarder.Forward(ctx, text)
	if err != nil {
		logger.Error("forward failed", "err", err)
		return classify(err)
	}

	n, err := conn.Write(out)
	if l.metrics != nil && n > 0 {
		l.metrics.BytesWritten.Add(float64(n))
	}
	if err != nil {
		logger.Error("send to client", "err", err, "bytes_sent", n)
		return metrics.OutcomeWriteError
	}
	logger.Info("sent to client", "bytes_sent", n)
	return metrics.OutcomeForwarded
}

func classify(err error) string {
	var se *client.StatusError
	switch {
	case errors.Is(err, service.ErrMalformedRequest):
		return metrics.OutcomeMalformed
	case errors.As(err, &se):
		return metrics.OutcomeUpstreamStatus
	default:
		return metrics.OutcomeUpstreamError
	}
}
