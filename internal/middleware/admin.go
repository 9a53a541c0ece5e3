package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdmin aborts requests whose access token does not carry the admin
// flag.  It assumes JWTAuth ran earlier and stored "is_admin" in the
// context; a missing or mistyped value is treated as non-admin.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			isAdmin, ok := c.Get("is_admin").(bool)
			if !ok || !isAdmin {
				return c.JSON(http.StatusForbidden, echo.Map{
					"code":  "FORBIDDEN",
					"error": "admin access required",
				})
			}
			return next(c)
		}
	}
}
