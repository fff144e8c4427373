package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/service"
)

type NotificationHandler struct {
	ErrorWriter
	Notes *service.NotificationService
}

func NewNotificationHandler(notes *service.NotificationService, log *zap.Logger) *NotificationHandler {
	if notes == nil {
		panic("nil notification service passed to NewNotificationHandler")
	}
	return &NotificationHandler{ErrorWriter: ErrorWriter{Log: log}, Notes: notes}
}

// List handles GET /v1/notifications?unread=true and reports the unread
// count alongside the items.
func (h *NotificationHandler) List(c echo.Context) error {
	ctx, caller := c.Request().Context(), middleware.Caller(c)
	ns, err := h.Notes.List(ctx, caller, queryBool(c, "unread"))
	if err != nil {
		return h.write(c, err)
	}
	unread, err := h.Notes.UnreadCount(ctx, caller)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"items": ns, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	if err := h.Notes.MarkRead(c.Request().Context(), middleware.Caller(c), id); err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"id": id})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	n, err := h.Notes.MarkAllRead(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"updated": n})
}
