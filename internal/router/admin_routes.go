package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/model"
)

// RegisterAdmin registers user administration.  The group is gated on the
// ADMIN role on top of the per-operation policy check.
func RegisterAdmin(g *echo.Group, h Handlers) {
	if h.Users == nil {
		return
	}
	admin := g.Group("/users", middleware.RequireRole(model.RoleAdmin))
	admin.PATCH("/:id/role", h.Users.SetRole)
	admin.PATCH("/:id/billing", h.Users.SetBilling)
}
