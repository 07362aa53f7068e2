package middleware

import (
	"github.com/labstack/echo/v4"
)

// AdminHeaders returns an Echo middleware that hardens the gateway's own
// endpoints. Proxied responses must stay frameable, so it is only mounted
// on admin routes.
func AdminHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
