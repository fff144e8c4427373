// Package router registers the HTTP routes on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/taskflow/internal/handler"
	"github.com/iliyamo/taskflow/internal/webhook"
)

// Handlers groups every handler the routes are bound to.
type Handlers struct {
	Tasks         *handler.TaskHandler
	Projects      *handler.ProjectHandler
	Teams         *handler.TeamHandler
	Notifications *handler.NotificationHandler
	Time          *handler.TimeHandler
	Users         *handler.UserHandler
	App           *handler.AppHandler
	Connections   *handler.ConnectionHandler
	Realtime      *handler.RealtimeHandler
	Webhook       *webhook.Handler
}

// Auth is the middleware chain of the /v1 group, in order: token check,
// caller lookup, rate limit, response cache.
type Auth struct {
	JWT       echo.MiddlewareFunc
	Caller    echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (a Auth) chain() []echo.MiddlewareFunc {
	var out []echo.MiddlewareFunc
	for _, m := range []echo.MiddlewareFunc{a.JWT, a.Caller, a.RateLimit, a.Cache} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RegisterRoutes registers the unauthenticated routes: the health probe,
// the OAuth callback and the auth provider webhook.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	if h.Connections != nil {
		e.GET("/api/callback/:provider", h.Connections.Callback)
	}
	if h.Webhook != nil {
		e.POST("/api/webhooks/clerk", h.Webhook.Handle)
	}
}

// Register wires every route of the API.
func Register(e *echo.Echo, h Handlers, auth Auth) {
	RegisterRoutes(e, h)
	v1 := e.Group("/v1", auth.chain()...)
	RegisterWork(v1, h)
	RegisterAccount(v1, h)
	RegisterAdmin(v1, h)
}
