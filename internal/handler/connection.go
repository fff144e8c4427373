package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/integrations"
	"github.com/iliyamo/taskflow/internal/middleware"
)

// StateCookie carries the OAuth state between start and callback.
const StateCookie = "oauth_state"

// ConnectionHandler serves the third-party connections page and the OAuth
// round trip.
type ConnectionHandler struct {
	ErrorWriter
	Conns *integrations.Connections
	// Secure marks the state cookie Secure; set outside development.
	Secure bool
}

func NewConnectionHandler(conns *integrations.Connections, secure bool, log *zap.Logger) *ConnectionHandler {
	if conns == nil {
		panic("nil connections passed to NewConnectionHandler")
	}
	return &ConnectionHandler{ErrorWriter: ErrorWriter{Log: log}, Conns: conns, Secure: secure}
}

func (h *ConnectionHandler) List(c echo.Context) error {
	st, err := h.Conns.List(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, st)
}

func (h *ConnectionHandler) Delete(c echo.Context) error {
	provider := c.Param("provider")
	if err := h.Conns.Delete(c.Request().Context(), middleware.Caller(c), provider); err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"provider": provider})
}

// Start sets the state cookie and redirects the browser to the provider.
func (h *ConnectionHandler) Start(c echo.Context) error {
	authURL, state, err := h.Conns.Start(middleware.Caller(c), c.Param("provider"))
	if err != nil {
		return h.write(c, err)
	}
	c.SetCookie(&http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/api/callback",
		MaxAge:   int(integrations.StateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, authURL)
}

// Callback is unauthenticated: the signed state identifies the user.  The
// state cookie is cleared whatever the outcome.
func (h *ConnectionHandler) Callback(c echo.Context) error {
	var cookieState string
	if ck, err := c.Cookie(StateCookie); err == nil {
		cookieState = ck.Value
	}
	c.SetCookie(&http.Cookie{
		Name:     StateCookie,
		Path:     "/api/callback",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	target := h.Conns.Callback(c.Request().Context(), c.Param("provider"), c.QueryParams(), cookieState)
	return c.Redirect(http.StatusFound, target)
}
