package auth

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/gatehouse/internal/middleware"
	"github.com/keyxmakerx/gatehouse/internal/token"
)

// RegisterRoutes mounts the auth API under /api/v1/auth. The
// credential-facing endpoints are individually rate limited by IP; the
// account endpoints require a valid access token instead.
func RegisterRoutes(e *echo.Echo, h *Handler, codec *token.Codec, rdb *redis.Client) {
	g := e.Group("/api/v1/auth")

	g.POST("/email/login", h.Login,
		middleware.RateLimit(rdb, "login", 10, time.Minute))
	g.POST("/email/register", h.Register,
		middleware.RateLimit(rdb, "register", 5, time.Minute))
	g.POST("/email/confirm", h.ConfirmEmail,
		middleware.RateLimit(rdb, "confirm", 10, time.Minute))
	g.POST("/forgot/password", h.ForgotPassword,
		middleware.RateLimit(rdb, "forgot", 5, time.Minute))
	g.POST("/reset/password", h.ResetPassword,
		middleware.RateLimit(rdb, "reset", 5, time.Minute))

	g.POST("/refresh", h.Refresh,
		middleware.RateLimit(rdb, "refresh", 30, time.Minute),
		RequireRefresh(codec))

	g.GET("/me", h.Me, RequireAccess(codec))
	g.PATCH("/me", h.Update, RequireAccess(codec))
	g.DELETE("/me", h.Delete, RequireAccess(codec))
	g.POST("/logout", h.Logout, RequireAccess(codec))
}
