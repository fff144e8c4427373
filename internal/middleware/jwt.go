package middleware // reusable HTTP middleware shared by the route groups

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/taskflow/internal/utils"
)

// JWTAuth validates the caller's bearer token and stores its subject, the
// auth provider's user id, under the "external_id" key.  Browsers cannot
// set headers on a websocket handshake, so a "token" query parameter is
// accepted as a fallback.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c.Request().Header.Get("Authorization"))
			if raw == "" {
				raw = c.QueryParam("token")
			}
			if raw == "" {
				return unauthorized(c)
			}
			sub, err := utils.ParseSubject(secret, raw)
			if err != nil {
				return unauthorized(c)
			}
			c.Set(keyExternalID, sub)
			return next(c)
		}
	}
}

func bearer(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "Not authenticated"})
}
