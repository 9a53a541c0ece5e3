// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
	"github.com/anchorapp/anchor-server/internal/handler"
	"github.com/anchorapp/anchor-server/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints.  Unauthenticated operations
// live under /v1/auth; verify requires a valid access token.  The optional
// extra middlewares (rate limiting) apply to the whole group: login,
// register and the reset endpoints are the prime brute-force targets.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec *auth.TokenCodec, extra ...echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	for _, mw := range extra {
		if mw != nil {
			g.Use(mw)
		}
	}
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/oauth", a.OAuthLogin)
	// Refresh issues a new access token; the refresh token is not rotated.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a refresh_token body or a bearer token; it is safe to
	// retry either way.
	g.POST("/logout", a.Logout)
	g.POST("/password-reset/request", a.RequestPasswordReset)
	g.POST("/password-reset/confirm", a.ConfirmPasswordReset)

	// Verify runs behind the JWT middleware: reaching the handler already
	// proves the token.
	g.GET("/verify", a.Verify, middleware.JWTAuth(codec))
}
