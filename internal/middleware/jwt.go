package middleware // middleware provides reusable HTTP middleware for protected routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// through the token codec and injects the caller's identity into the request
// context.  Handlers behind it read `c.Get("user_id")` (string) and
// `c.Get("is_admin")` (bool).  Verification is stateless: no storage is
// touched per request.
func JWTAuth(codec *auth.TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"code":  "UNAUTHENTICATED",
					"error": "missing bearer token",
				})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			id, err := codec.VerifyAccessToken(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"code":  "UNAUTHENTICATED",
					"error": "invalid or expired token",
				})
			}

			c.Set("user_id", id.UserID)
			c.Set("is_admin", id.IsAdmin)
			return next(c)
		}
	}
}
