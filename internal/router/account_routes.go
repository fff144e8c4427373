package router

import "github.com/labstack/echo/v4"

// RegisterAccount registers the caller-scoped routes: profile, billing,
// notifications, time tracking, navigation, connections and the realtime
// websocket.
func RegisterAccount(g *echo.Group, h Handlers) {
	if u := h.Users; u != nil {
		g.GET("/me", u.Me)
		g.PATCH("/me", u.UpdateProfile)
		g.GET("/users", u.List)
		g.GET("/billing", u.Billing)
	}

	if n := h.Notifications; n != nil {
		g.GET("/notifications", n.List)
		g.POST("/notifications/read-all", n.MarkAllRead)
		g.POST("/notifications/:id/read", n.MarkRead)
	}

	if t := h.Time; t != nil {
		g.POST("/time/start", t.Start)
		g.POST("/time/stop", t.Stop)
		g.GET("/time", t.List)
		g.GET("/time/active", t.Active)
		g.GET("/time/total", t.Total)
	}

	if a := h.App; a != nil {
		g.GET("/navigation", a.Navigation)
		g.GET("/dashboard", a.Dashboard)
		g.GET("/config/public", a.PublicConfig)
	}

	if c := h.Connections; c != nil {
		g.GET("/connections", c.List)
		g.GET("/connections/:provider/start", c.Start)
		g.DELETE("/connections/:provider", c.Delete)
	}

	if h.Realtime != nil {
		g.GET("/realtime", h.Realtime.Subscribe)
	}
}
