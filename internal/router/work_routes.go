package router

import "github.com/labstack/echo/v4"

// RegisterWork registers tasks, projects with their board, comments and
// meetings, and teams.  Who may do what is decided by the services.
func RegisterWork(g *echo.Group, h Handlers) {
	if t := h.Tasks; t != nil {
		g.GET("/tasks", t.List)
		g.POST("/tasks", t.Create)
		g.GET("/tasks/:id", t.Get)
		g.PATCH("/tasks/:id", t.Edit)
		g.DELETE("/tasks/:id", t.Delete)
		g.POST("/tasks/:id/assign", t.Assign)
		g.POST("/tasks/:id/auto-assign", t.AutoAssign)
		g.POST("/tasks/:id/unassign", t.Unassign)
		g.POST("/tasks/:id/accept", t.Accept)
		g.POST("/tasks/:id/decline", t.Decline)
		g.POST("/tasks/:id/start", t.Start)
		g.POST("/tasks/:id/complete", t.Complete)
		g.PATCH("/tasks/:id/status", t.UpdateStatus)
	}

	if p := h.Projects; p != nil {
		g.GET("/projects", p.List)
		g.POST("/projects", p.Create)
		g.GET("/projects/:id", p.Get)
		g.PATCH("/projects/:id", p.Update)
		g.DELETE("/projects/:id", p.Delete)
		g.POST("/projects/:id/progress", p.Progress)
		g.GET("/projects/:id/board", p.Board)
		g.GET("/projects/:id/comments", p.ListComments)
		g.POST("/projects/:id/comments", p.CreateComment)
		g.GET("/projects/:id/meetings", p.ListMeetings)
		g.POST("/projects/:id/meetings", p.CreateMeeting)
		g.PATCH("/meetings/:id", p.UpdateMeeting)
	}

	if t := h.Teams; t != nil {
		g.GET("/teams", t.List)
		g.POST("/teams", t.Create)
		g.GET("/teams/:id", t.Get)
		g.PATCH("/teams/:id", t.Update)
		g.POST("/teams/:id/members", t.AddMember)
		g.DELETE("/teams/:id/members/:userId", t.RemoveMember)
		g.PATCH("/teams/:id/members/:userId/role", t.UpdateMemberRole)
	}
}
