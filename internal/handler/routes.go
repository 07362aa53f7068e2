package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"framegate/internal/config"
	"framegate/internal/metrics"
	"framegate/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Admin
// endpoints live under the configured prefix; every other path is proxied.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	admin := e.Group(cfg.Server.AdminPrefix, middleware.AdminHeaders())
	admin.GET("/healthz", health.Healthz)
	admin.GET("/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
		e.GET(cfg.Metrics.Path, echo.WrapHandler(h), middleware.AdminHeaders())
	}

	e.Any("/*", proxy.Handle)
}
