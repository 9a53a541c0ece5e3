package router

import (
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
	"github.com/anchorapp/anchor-server/internal/handler"
	"github.com/anchorapp/anchor-server/internal/middleware"
)

// RegisterAnchors registers all authenticated anchor, content, unlock and
// profile routes under /v1.  The optional extra middlewares (rate limiting)
// apply to the whole group; cacheMW, when non-nil, wraps only the nearby
// listing.
func RegisterAnchors(
	e *echo.Echo,
	codec *auth.TokenCodec,
	anchors *handler.AnchorHandler,
	unlocks *handler.UnlockHandler,
	contents *handler.ContentHandler,
	users *handler.UserHandler,
	cacheMW echo.MiddlewareFunc,
	extra ...echo.MiddlewareFunc,
) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(codec))
	for _, mw := range extra {
		if mw != nil {
			g.Use(mw)
		}
	}

	// Profile.  /me is the short form of /user/profile.
	g.GET("/me", users.Me)
	g.GET("/user/profile", users.Me)
	g.PATCH("/user/profile", users.UpdateMe)

	// Anchors.  The nearby listing is registered before the :id routes so
	// "nearby" is never captured as an anchor id.
	if cacheMW != nil {
		g.GET("/anchors/nearby", anchors.Nearby, cacheMW)
	} else {
		g.GET("/anchors/nearby", anchors.Nearby)
	}
	g.POST("/anchors", anchors.Create)
	g.GET("/anchors/:id", anchors.Get)
	g.PATCH("/anchors/:id", anchors.Update)
	g.DELETE("/anchors/:id", anchors.Delete)

	// Unlock pipeline
	g.POST("/anchors/:id/unlock", unlocks.Unlock)

	// Creator content management
	g.POST("/anchors/:id/content", contents.Attach)
	g.GET("/anchors/:id/content", contents.List)

	// Moderation
	admin := g.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.PUT("/anchors/:id/status", anchors.SetStatus)
}
