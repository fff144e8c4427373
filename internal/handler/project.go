package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/service"
)

// ProjectHandler serves /v1/projects together with the project scoped
// comments, meetings and Kanban board.
type ProjectHandler struct {
	ErrorWriter
	Projects *service.ProjectService
	Comments *service.CommentService
	Meetings *service.MeetingService
}

func NewProjectHandler(projects *service.ProjectService, comments *service.CommentService,
	meetings *service.MeetingService, log *zap.Logger) *ProjectHandler {
	if projects == nil || comments == nil || meetings == nil {
		panic("nil service passed to NewProjectHandler")
	}
	return &ProjectHandler{ErrorWriter: ErrorWriter{Log: log}, Projects: projects, Comments: comments, Meetings: meetings}
}

func (h *ProjectHandler) List(c echo.Context) error {
	ps, err := h.Projects.List(c.Request().Context(), middleware.Caller(c), c.QueryParam("status"))
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, ps)
}

func (h *ProjectHandler) Create(c echo.Context) error {
	var in service.ProjectInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	p, err := h.Projects.Create(c.Request().Context(), middleware.Caller(c), in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, p)
}

func (h *ProjectHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	p, err := h.Projects.Get(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *ProjectHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.ProjectUpdate
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	p, err := h.Projects.Update(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, p)
}

// Delete removes the project with its tasks, comments and meetings.
func (h *ProjectHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	if err := h.Projects.Delete(c.Request().Context(), middleware.Caller(c), id); err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"id": id})
}

// Progress handles POST /v1/projects/:id/progress with either
// {"progress": n} or {"derive": true}.
func (h *ProjectHandler) Progress(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.ProgressInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	p, err := h.Projects.UpdateProgress(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, p)
}

func (h *ProjectHandler) Board(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	b, err := h.Projects.Board(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, b)
}

func (h *ProjectHandler) ListComments(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	cs, err := h.Comments.List(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, cs)
}

func (h *ProjectHandler) CreateComment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.CommentInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	cm, err := h.Comments.Create(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, cm)
}

func (h *ProjectHandler) ListMeetings(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	ms, err := h.Meetings.List(c.Request().Context(), middleware.Caller(c), id)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, ms)
}

func (h *ProjectHandler) CreateMeeting(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.MeetingInput
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	m, err := h.Meetings.Create(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusCreated, m)
}

// UpdateMeeting handles PATCH /v1/meetings/:id: reschedule, rename or
// change status.
func (h *ProjectHandler) UpdateMeeting(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.write(c, err)
	}
	var in service.MeetingUpdate
	if err := bind(c, &in); err != nil {
		return h.write(c, err)
	}
	m, err := h.Meetings.Update(c.Request().Context(), middleware.Caller(c), id, in)
	if err != nil {
		return h.write(c, err)
	}
	return ok(c, http.StatusOK, m)
}
