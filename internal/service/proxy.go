// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"framegate/internal/config"
	"framegate/internal/inject"
	"framegate/internal/metrics"
	"framegate/internal/model"
)

// Fetcher performs a single outbound request without following redirects.
type Fetcher interface {
	Do(req *http.Request) (*model.ProxyResponse, error)
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	fetcher Fetcher
	param   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(f Fetcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		fetcher: f,
		param:   cfg.Gateway.Param,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// Forward sends pr to its target and returns the rewritten response.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.Target == nil {
		return nil, errors.New("forward: request has no target")
	}

	out, err := NewOutboundRequest(pr)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", pr.Target.Redacted(),
	)

	resp, err := s.fetcher.Do(out)
	if err != nil {
		return nil, fmt.Errorf("forward to target: %w", err)
	}

	header, cookies := SanitizeResponseHeader(resp.Header)
	s.countRewrite(metrics.RewriteCookie, cookies)

	rewritten, err := RewriteRedirect(resp.StatusCode, header, pr.Target, pr.ProxyOrigin, s.param)
	if err != nil {
		s.logger.Warn("leaving redirect untouched",
			"err", err,
			"status", resp.StatusCode,
			"target", pr.Target.Redacted(),
		)
	}
	if rewritten {
		s.countRewrite(metrics.RewriteRedirect, 1)
	}

	resp.Header = header
	resp.Body = s.injectHTML(pr, resp)
	return resp, nil
}

// injectHTML wraps an HTML body with the head injector. Bodies that carry no
// content, are not HTML, or use an encoding that cannot be undone are
// returned unchanged.
func (s *ProxyService) injectHTML(pr *model.ProxyRequest, resp *model.ProxyResponse) io.ReadCloser {
	if pr.Method == http.MethodHead || !bodyAllowed(resp.StatusCode) || !inject.IsHTML(resp.Header) {
		return resp.Body
	}

	encoding := resp.Header.Get("Content-Encoding")
	body, err := inject.Decode(resp.Body, encoding)
	if err != nil {
		s.logger.Warn("skipping html injection",
			"err", err,
			"content_encoding", encoding,
			"target", pr.Target.Redacted(),
		)
		return body
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	s.countRewrite(metrics.RewriteHTMLInject, 1)
	return inject.NewReader(body, inject.Fragment(pr.Target))
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

func (s *ProxyService) countRewrite(kind string, n int) {
	if s.metrics == nil || n == 0 {
		return
	}
	s.metrics.RewritesTotal.WithLabelValues(kind).Add(float64(n))
}
