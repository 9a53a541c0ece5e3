package handler

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
)

// dbTimeout bounds every database round trip made from a handler.
const dbTimeout = 5 * time.Second

// getUserID extracts the authenticated user's ID placed in the context by the
// JWT middleware.
func getUserID(c echo.Context) (string, error) {
	v, ok := c.Get("user_id").(string)
	if !ok || v == "" {
		return "", errors.New("no user_id in context")
	}
	return v, nil
}

// adminFlag reports whether the current request carries an admin token.
func adminFlag(c echo.Context) bool {
	v, _ := c.Get("is_admin").(bool)
	return v
}
