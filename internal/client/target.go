// Package client provides the outbound HTTP client used to reach targets.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"framegate/internal/config"
	"framegate/internal/metrics"
	"framegate/internal/model"
)

// TargetClient sends forwarded requests to target sites.
type TargetClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewTargetClient creates a TargetClient with connection pooling and timeouts.
// Redirects are never followed: 3xx responses are returned to the caller,
// which rewrites them so the browser stays on the gateway.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewTargetClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TargetClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// Only the wait for headers is bounded; bodies stream for as long as
		// the client keeps reading and are canceled with the request context.
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		// Accept-Encoding is forwarded from the browser as-is; decoding is
		// left to whoever needs the plain body.
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
	}

	return &TargetClient{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "target_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against a target and returns the raw response.
// The caller is responsible for closing the response body.
func (c *TargetClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("target request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("target request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
