package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gatehouse/internal/apperror"
	"github.com/keyxmakerx/gatehouse/internal/token"
)

// Context keys for the validated token claims.
const (
	ctxIdentity         = "auth.identity"
	ctxRefreshSessionID = "auth.refresh_session"
)

// RequireAccess validates the bearer access token and stores its claims in
// the request context. Requests without a valid token get 401.
func RequireAccess(codec *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := codec.VerifyAccess(raw)
			if err != nil {
				return apperror.NewUnauthorized("invalid or expired access token")
			}

			c.Set(ctxIdentity, claims)
			return next(c)
		}
	}
}

// RequireRefresh validates the bearer refresh token and stores its session
// id in the request context. Only the refresh endpoint uses this.
func RequireRefresh(codec *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims, err := codec.VerifyRefresh(raw)
			if err != nil {
				return apperror.NewUnauthorized("invalid or expired refresh token")
			}

			c.Set(ctxRefreshSessionID, claims.SessionID)
			return next(c)
		}
	}
}

// Identity returns the access claims stored by RequireAccess, or nil when
// the middleware did not run.
func Identity(c echo.Context) *token.AccessClaims {
	claims, _ := c.Get(ctxIdentity).(*token.AccessClaims)
	return claims
}

// RefreshSessionID returns the session id stored by RequireRefresh.
func RefreshSessionID(c echo.Context) string {
	id, _ := c.Get(ctxRefreshSessionID).(string)
	return id
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", apperror.NewUnauthorized("missing authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", apperror.NewUnauthorized("authorization header is not a bearer token")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if raw == "" {
		return "", apperror.NewUnauthorized("empty bearer token")
	}
	return raw, nil
}
