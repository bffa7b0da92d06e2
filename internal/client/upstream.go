// Package client provides the upstream HTTP client the proxy forwards to.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"toolkit-proxy-go/internal/config"
	"toolkit-proxy-go/internal/metrics"
	"toolkit-proxy-go/internal/model"
)

// contentHeaders are the entity headers rendered ahead of the general
// response headers.
var contentHeaders = map[string]bool{
	"Allow":               true,
	"Content-Disposition": true,
	"Content-Encoding":    true,
	"Content-Language":    true,
	"Content-Length":      true,
	"Content-Location":    true,
	"Content-Md5":         true,
	"Content-Range":       true,
	"Content-Type":        true,
	"Expires":             true,
	"Last-Modified":       true,
}

// StatusError is returned for upstream responses outside 2xx. Such
// responses are never forwarded to the client.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned non-success status %q", e.Status)
}

// UpstreamClient sends adjusted requests to the configured upstream over a
// single long-lived http.Client.
type UpstreamClient struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient for cfg.Upstream.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*UpstreamClient, error) {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		// The proxy must not add an Accept-Encoding header of its own.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return newUpstreamClient(cfg, logger, m, transport)
}

// NewUpstreamClientForTest creates an UpstreamClient that sends requests
// through rt instead of the network.
func NewUpstreamClientForTest(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, rt http.RoundTripper) (*UpstreamClient, error) {
	return newUpstreamClient(cfg, logger, m, rt)
}

func newUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, rt http.RoundTripper) (*UpstreamClient, error) {
	base, err := cfg.Upstream.BaseURL()
	if err != nil {
		return nil, fmt.Errorf("upstream client: %w", err)
	}
	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		baseURL: base,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}, nil
}

// Resolve returns the absolute URL for a request target. Absolute targets
// are used as given; anything else is resolved against the upstream base URL.
func (c *UpstreamClient) Resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", target, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// Get performs the adjusted request and returns the materialized response.
// Non-2xx replies are returned as *StatusError.
func (c *UpstreamClient) Get(ctx context.Context, ar model.AdjustedRequest) (*model.UpstreamResponse, error) {
	target, err := c.Resolve(ar.TargetURI)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, ar.Method, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Host = ar.Host
	// An empty User-Agent suppresses Go's default one, leaving Host as the
	// only header the proxy sets.
	req.Header.Set("User-Agent", "")

	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", target.String(),
		"host", req.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(duration)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(metrics.NormalizeStatus(resp.StatusCode)).Inc()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	content, general := splitHeaders(resp)
	return &model.UpstreamResponse{
		Version:        fmt.Sprintf("%d.%d", resp.ProtoMajor, resp.ProtoMinor),
		StatusCode:     resp.StatusCode,
		Reason:         reasonPhrase(resp),
		ContentHeaders: content,
		GeneralHeaders: general,
		Body:           string(body),
	}, nil
}

// reasonPhrase extracts the reason from resp.Status ("200 OK"), falling back
// to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	if reason, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// splitHeaders partitions the response headers into content and general
// sequences, each ordered by name. Transfer-Encoding, which net/http moves
// out of the header map, is restored among the general headers.
func splitHeaders(resp *http.Response) (content, general []model.Header) {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	if len(resp.TransferEncoding) > 0 && resp.Header.Get("Transfer-Encoding") == "" {
		names = append(names, "Transfer-Encoding")
	}
	sort.Strings(names)

	for _, name := range names {
		values := resp.Header.Values(name)
		if name == "Transfer-Encoding" && len(values) == 0 {
			values = resp.TransferEncoding
		}
		h := model.Header{Name: name, Value: strings.Join(values, ", ")}
		if contentHeaders[http.CanonicalHeaderKey(name)] {
			content = append(content, h)
		} else {
			general = append(general, h)
		}
	}
	return content, general
}
