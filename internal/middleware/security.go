package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. Gatehouse serves JSON only, so the policy is strict:
// nothing may be loaded, framed, or executed from a response.
//
// TLS is terminated by the reverse proxy in front of the service; these
// headers still apply at the application layer.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// An API response must never be interpreted as a document.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// Strict-Transport-Security: enforce HTTPS for 1 year including
			// subdomains.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// X-Content-Type-Options: prevent MIME type sniffing.
			h.Set("X-Content-Type-Options", "nosniff")

			// X-Frame-Options: redundant with CSP frame-ancestors but some
			// older browsers only support this header.
			h.Set("X-Frame-Options", "DENY")

			// Referrer-Policy: never leak token-bearing URLs to other origins.
			h.Set("Referrer-Policy", "no-referrer")

			// Token payloads must not be stored by shared caches.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
