package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/service"
)

// TimeHandler serves /v1/time.
type TimeHandler struct {
	ErrorWriter
	Time *service.TimeService
}

func NewTimeHandler(entries *service.TimeService, log *zap.Logger) *TimeHandler {
	if entries == nil {
		panic("nil time service passed to NewTimeHandler")
	}
	return &TimeHandler{ErrorWriter: ErrorWriter{Log: log}, Time: entries}
}

// Start opens a time entry.  A second open entry is a 409.
func (h *TimeHandler) Start(c echo.Context) error {
	var in service.TimeStartInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	e, err := h.Time.Start(c.Request().Context(), middleware.Caller(c), in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, e)
}

func (h *TimeHandler) Stop(c echo.Context) error {
	e, err := h.Time.Stop(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, e)
}

func (h *TimeHandler) List(c echo.Context) error {
	taskID, err := queryUint(c, "task_id")
	if err != nil {
		return h.write(c, err)
	}
	es, err := h.Time.List(c.Request().Context(), middleware.Caller(c), taskID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, es)
}

// Total reports the tracked seconds of ?task_id.
func (h *TimeHandler) Total(c echo.Context) error {
	taskID, err := queryUint(c, "task_id")
	if err != nil {
		return h.write(c, err)
	}
	total, err := h.Time.Total(c.Request().Context(), middleware.Caller(c), taskID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, total)
}

func (h *TimeHandler) Active(c echo.Context) error {
	e, err := h.Time.Active(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, e)
}
