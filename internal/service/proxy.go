// Package service implements the request/response rewriting around the
// upstream call.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"toolkit-proxy-go/internal/config"
	"toolkit-proxy-go/internal/model"
)

// Upstream performs the forwarded call.
type Upstream interface {
	Get(ctx context.Context, ar model.AdjustedRequest) (*model.UpstreamResponse, error)
}

// ProxyService chains request adjustment, the upstream call and response
// adjustment for one inbound request.
type ProxyService struct {
	upstream Upstream
	host     string
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService that stamps the configured
// upstream host onto every request.
func NewProxyService(up Upstream, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := cfg.Upstream.BaseURL()
	if err != nil {
		return nil, fmt.Errorf("proxy service: %w", err)
	}
	return &ProxyService{
		upstream: up,
		host:     u.Host,
		logger:   logger.With("component", "proxy_service"),
	}, nil
}

// Host returns the value used for the Host header.
func (s *ProxyService) Host() string {
	return s.host
}

// Forward turns the decoded request text into the response bytes for the
// client. Any error means nothing should be written back.
func (s *ProxyService) Forward(ctx context.Context, text string) ([]byte, error) {
	ar, err := AdjustRequest(text, s.host)
	if err != nil {
		return nil, err
	}
	s.logger.Info("adjusted request",
		"method", ar.Method,
		"uri", ar.TargetURI,
		"host", ar.Host,
	)

	resp, err := s.upstream.Get(ctx, ar)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	s.logger.Debug("upstream response",
		"status", resp.StatusCode,
		"content_headers", len(resp.ContentHeaders),
		"general_headers", len(resp.GeneralHeaders),
		"body_bytes", len(resp.Body),
	)

	return []byte(AdjustResponse(resp)), nil
}
