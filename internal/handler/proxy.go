package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"framegate/internal/config"
	"framegate/internal/metrics"
	"framegate/internal/model"
	"framegate/internal/resolver"
	"framegate/internal/service"
)

// queryPattern matches query strings of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(https?://[^\s"?]*)\?[^\s"]*`)

const streamBufferSize = 32 * 1024

// ProxyHandler resolves the target of an inbound request, forwards it and
// streams the rewritten response back.
type ProxyHandler struct {
	resolver  *resolver.Resolver
	service   *service.ProxyService
	publicURL string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(r *resolver.Resolver, svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		resolver:  r,
		service:   svc,
		publicURL: cfg.Server.PublicURL,
		logger:    logger.With("component", "proxy_handler"),
		metrics:   m,
	}
}

// Handle proxies the request to its resolved target. Requests without a
// target get usage instructions.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	target, strategy, err := h.resolver.Resolve(req)
	if h.metrics != nil {
		h.metrics.Resolutions.WithLabelValues(string(strategy)).Inc()
	}
	if err != nil {
		return h.usage(c)
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Target:        target,
		ProxyOrigin:   h.proxyOrigin(c),
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already sent, so a failure here leaves the client
	// with a truncated body. Log it and move on.
	if _, err := stream(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"target", target.Redacted(),
		)
	}

	return nil
}

func (h *ProxyHandler) usage(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf("Enter a URL: /?%s=https://example.com", h.resolver.Param()))
}

// proxyOrigin is the gateway origin as the browser sees it.
func (h *ProxyHandler) proxyOrigin(c echo.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

// stream copies body to w, flushing after every chunk so the client receives
// data as soon as the target sends it.
func stream(w *echo.Response, body io.Reader) (int64, error) {
	buf := make([]byte, streamBufferSize)
	var written int64
	for {
		nr, rerr := body.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			w.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func (h *ProxyHandler) mapError(c echo.Context, target *model.Target, err error) error {
	diagnostic := diagnose(err)
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"diagnostic", diagnostic,
		"target", target.Redacted(),
	)
	return c.String(http.StatusInternalServerError, "Proxy Error: "+diagnostic)
}

// diagnose classifies an outbound failure into a short message safe to show
// to the client.
func diagnose(err error) string {
	if errors.Is(err, context.Canceled) {
		return "client disconnected"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "target timed out"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "target host not found"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "target timed out"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection to target failed"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "target request failed"
	}

	return "request failed"
}

// sanitizeError redacts query strings from URLs embedded in error messages.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
