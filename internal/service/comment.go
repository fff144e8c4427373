package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/repository"
)

// CommentService stores project feedback.  The project's manager is told
// about every comment left by someone else.
type CommentService struct {
	comments *repository.CommentRepo
	projects *repository.ProjectRepo
	notes    *NotificationService
	fx       Effects
}

func NewCommentService(comments *repository.CommentRepo, projects *repository.ProjectRepo,
	notes *NotificationService, fx Effects) *CommentService {
	return &CommentService{comments: comments, projects: projects, notes: notes, fx: fx.withDefaults()}
}

type CommentInput struct {
	Content string `json:"content"`
	Rating  *int   `json:"rating"`
}

const maxComment = 5000

func (s *CommentService) Create(ctx context.Context, caller model.User, projectID uint64, in CommentInput) (model.Comment, error) {
	p, err := viewProject(ctx, s.projects, caller, projectID, policy.CommentCreate, "comment on this project")
	if err != nil {
		return model.Comment{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" || len(content) > maxComment {
		return model.Comment{}, invalid("content is required and at most %d characters", maxComment)
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return model.Comment{}, invalid("rating must be between 1 and 5")
	}
	c := model.Comment{ProjectID: projectID, AuthorID: caller.ID, Author: caller.Name, Content: content, Rating: in.Rating}
	if err := s.comments.Create(ctx, &c); err != nil {
		return model.Comment{}, err
	}
	if p.ManagerID != caller.ID {
		link := fmt.Sprintf("/projects/%d", projectID)
		s.notes.notifyID(ctx, p.ManagerID, model.NotifyCommentAdded, "New comment",
			fmt.Sprintf("%s commented on %q", caller.Name, p.Name), &link)
	}
	s.fx.invalidate(ctx, fmt.Sprintf("%s/%d/comments", pathProjects, projectID))
	return c, nil
}

func (s *CommentService) List(ctx context.Context, caller model.User, projectID uint64) ([]model.Comment, error) {
	if _, err := viewProject(ctx, s.projects, caller, projectID, policy.ProjectView, "view this project"); err != nil {
		return nil, err
	}
	return s.comments.ListByProject(ctx, projectID)
}

// viewProject loads a project and checks action against the caller's
// relationship to it.
func viewProject(ctx context.Context, projects *repository.ProjectRepo, caller model.User, id uint64, action policy.Action, what string) (model.Project, error) {
	if err := authenticated(caller); err != nil {
		return model.Project{}, err
	}
	p, err := projects.Get(ctx, id)
	if err != nil {
		return model.Project{}, fromRepo(err, "project")
	}
	owned, err := related(ctx, projects, caller, p)
	if err != nil {
		return model.Project{}, err
	}
	if !policy.Can(caller.Role, action, policy.Owned(owned)) {
		return model.Project{}, forbidden(what)
	}
	return p, nil
}
