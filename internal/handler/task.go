package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/service"
)

// TaskHandler serves /v1/tasks.
type TaskHandler struct {
	ErrorWriter
	Tasks *service.TaskService
}

func NewTaskHandler(tasks *service.TaskService, log *zap.Logger) *TaskHandler {
	if tasks == nil {
		panic("nil task service passed to NewTaskHandler")
	}
	return &TaskHandler{ErrorWriter: ErrorWriter{Log: log}, Tasks: tasks}
}

// List handles GET /v1/tasks?project_id=&assignee_id=&status=A,B&priority=&q=&page=&page_size=
func (h *TaskHandler) List(c echo.Context) error {
	projectID, err := queryUint(c, "project_id")
	if err != nil {
		return h.write(c, err)
	}
	assigneeID, err := queryUint(c, "assignee_id")
	if err != nil {
		return h.write(c, err)
	}
	f := service.TaskFilter{
		ProjectID:  projectID,
		AssigneeID: assigneeID,
		Priority:   c.QueryParam("priority"),
		Search:     c.QueryParam("q"),
		Page:       queryInt(c, "page"),
		PageSize:   queryInt(c, "page_size"),
	}
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			f.Statuses = append(f.Statuses, s)
		}
	}
	page, err := h.Tasks.List(c.Request().Context(), middleware.Caller(c), f)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, page)
}

func (h *TaskHandler) Create(c echo.Context) error {
	var in service.TaskInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.Create(c.Request().Context(), middleware.Caller(c), in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, t)
}

func (h *TaskHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.Get(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

func (h *TaskHandler) Edit(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.TaskEdit
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.Edit(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

func (h *TaskHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	if err := h.Tasks.Delete(c.Request().Context(), middleware.Caller(c), id); err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"id": id})
}

type assignRequest struct {
	UserID uint64 `json:"user_id"`
}

func (h *TaskHandler) Assign(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in assignRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.Assign(c.Request().Context(), middleware.Caller(c), id, in.UserID)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

type declineRequest struct {
	Reason string `json:"reason"`
}

func (h *TaskHandler) Decline(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in declineRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.Decline(c.Request().Context(), middleware.Caller(c), id, in.Reason)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /v1/tasks/:id/status.
func (h *TaskHandler) UpdateStatus(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in statusRequest
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	t, err := h.Tasks.UpdateStatus(c.Request().Context(), middleware.Caller(c), id, in.Status)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}

func (h *TaskHandler) AutoAssign(c echo.Context) error { return h.action(c, h.Tasks.AutoAssign) }
func (h *TaskHandler) Unassign(c echo.Context) error   { return h.action(c, h.Tasks.Unassign) }
func (h *TaskHandler) Accept(c echo.Context) error     { return h.action(c, h.Tasks.Accept) }
func (h *TaskHandler) Start(c echo.Context) error      { return h.action(c, h.Tasks.Start) }
func (h *TaskHandler) Complete(c echo.Context) error   { return h.action(c, h.Tasks.Complete) }

type taskAction func(ctx context.Context, caller model.User, id uint64) (model.Task, error)

// action runs a body-less task transition on the :id task.
func (h *TaskHandler) action(c echo.Context, fn taskAction) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	t, err := fn(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, t)
}
