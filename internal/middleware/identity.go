package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/service"
)

// Context keys set by the auth middleware.
const (
	keyExternalID = "external_id"
	keyCaller     = "caller"
)

// CallerLookup resolves the authenticated subject to a local user.
type CallerLookup interface {
	Caller(ctx context.Context, externalID string) (model.User, error)
}

// LoadCaller reads the caller's row for every request so the role always
// comes from the database.  A subject without a local user is rejected
// with 401.
func LoadCaller(users CallerLookup, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := users.Caller(c.Request().Context(), ExternalID(c))
			switch {
			case errors.Is(err, service.ErrUnauthenticated):
				return unauthorized(c)
			case err != nil:
				log.Error("caller lookup failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "internal error"})
			}
			c.Set(keyCaller, u)
			return next(c)
		}
	}
}

// ExternalID is the subject stored by JWTAuth, "" when absent.
func ExternalID(c echo.Context) string {
	s, _ := c.Get(keyExternalID).(string)
	return s
}

// Caller returns the user stored by LoadCaller.  The zero user is returned
// outside authenticated routes and fails every service check.
func Caller(c echo.Context) model.User {
	u, _ := c.Get(keyCaller).(model.User)
	return u
}

// userID identifies the requester for cache and rate limit keys.  It
// returns "guest" when no user is authenticated.
func userID(c echo.Context) string {
	if u := Caller(c); u.ID != 0 {
		return strconv.FormatUint(u.ID, 10)
	}
	if s := ExternalID(c); s != "" {
		return s
	}
	return "guest"
}
