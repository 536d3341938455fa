// ratelimit.go implements a per-IP fixed-window rate limiter backed by
// Redis, so limits hold across replicas and survive restarts. Designed for
// the credential-facing auth endpoints.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window duration. Returns 429 when exceeded.
//
// The counter key is scoped by name so each endpoint gets an independent
// budget. A Redis outage fails open: throttling is protection, not a
// correctness requirement, and auth must stay reachable.
func RateLimit(rdb *redis.Client, name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:%s:%s", name, c.RealIP())

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("name", name),
					slog.Any("error", err),
				)
				return next(c)
			}

			// First hit in the window owns the expiry. EXPIRE NX keeps a
			// racing second hit from extending the window.
			if count == 1 {
				if err := rdb.ExpireNX(ctx, key, window).Err(); err != nil {
					slog.Warn("setting rate limit window failed",
						slog.String("name", name),
						slog.Any("error", err),
					)
				}
			}

			if count > int64(maxRequests) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"type":    "rate_limited",
					"message": "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}
