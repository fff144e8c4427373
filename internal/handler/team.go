package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/service"
)

type TeamHandler struct {
	ErrorWriter
	Teams *service.TeamService
}

func NewTeamHandler(teams *service.TeamService, log *zap.Logger) *TeamHandler {
	if teams == nil {
		panic("nil team service passed to NewTeamHandler")
	}
	return &TeamHandler{ErrorWriter: ErrorWriter{Log: log}, Teams: teams}
}

func (h *TeamHandler) List(c echo.Context) error {
	ts, err := h.Teams.List(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, ts)
}

func (h *TeamHandler) Create(c echo.Context) error {
	var in service.TeamInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.Create(c.Request().Context(), middleware.Caller(c), in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, t)
}

func (h *TeamHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.Get(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

func (h *TeamHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.TeamUpdate
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.Update(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

type memberRequest struct {
	UserID uint64 `json:"user_id"`
}

func (h *TeamHandler) AddMember(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in memberRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.AddMember(c.Request().Context(), middleware.Caller(c), id, in.UserID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

func (h *TeamHandler) RemoveMember(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	userID, err := idParam(c, "userId")
	if err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.RemoveMember(c.Request().Context(), middleware.Caller(c), id, userID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateMemberRole promotes a member to team leader or demotes them back.
func (h *TeamHandler) UpdateMemberRole(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	userID, err := idParam(c, "userId")
	if err != nil {
		return h.write(c, err)
	}
	var in roleRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Teams.UpdateMemberRole(c.Request().Context(), middleware.Caller(c), id, userID, in.Role)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}
