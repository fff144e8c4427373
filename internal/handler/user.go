package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/service"
)

// UserHandler serves the caller's profile, the user directory and billing.
type UserHandler struct {
	ErrorWriter
	Users *service.UserService
}

func NewUserHandler(users *service.UserService, log *zap.Logger) *UserHandler {
	if users == nil {
		panic("nil user service passed to NewUserHandler")
	}
	return &UserHandler{ErrorWriter: ErrorWriter{Log: log}, Users: users}
}

func (h *UserHandler) Me(c echo.Context) error {
	u, err := h.Users.Me(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, u)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var in service.ProfileInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	u, err := h.Users.UpdateProfile(c.Request().Context(), middleware.Caller(c), in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, u)
}

// List handles GET /v1/users?role=EMPLOYEE.
func (h *UserHandler) List(c echo.Context) error {
	us, err := h.Users.List(c.Request().Context(), middleware.Caller(c), c.QueryParam("role"))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, us)
}

func (h *UserHandler) SetRole(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in roleRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	u, err := h.Users.SetRole(c.Request().Context(), middleware.Caller(c), id, in.Role)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, u)
}

// Billing handles GET /v1/billing; admins may pass ?user_id= to read
// another account.
func (h *UserHandler) Billing(c echo.Context) error {
	userID, err := queryUint(c, "user_id")
	if err != nil {
		return h.write(c, err)
	}
	b, err := h.Users.Billing(c.Request().Context(), middleware.Caller(c), userID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, b)
}

func (h *UserHandler) SetBilling(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.BillingInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	b, err := h.Users.SetBilling(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, b)
}
