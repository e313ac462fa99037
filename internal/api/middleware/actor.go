package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// HeaderUserID carries the authenticated user id set by the gateway in front of the service.
	HeaderUserID = "X-User-ID"

	actorKey = "actor_id"
)

// RequireActor rejects requests without a user id and stores it on the context.
func RequireActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": HeaderUserID + " header is required"})
			}
			c.Set(actorKey, userID)
			return next(c)
		}
	}
}

// Actor returns the user id stored by RequireActor.
func Actor(c echo.Context) string {
	id, _ := c.Get(actorKey).(string)
	return id
}
