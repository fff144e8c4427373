package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/policy"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/repository"
)

// TaskService owns the task lifecycle: creation, assignment, the
// assignee's accept/decline/start/complete flow and the orphan repair.
type TaskService struct {
	tasks    *repository.TaskRepo
	users    *repository.UserRepo
	projects *repository.ProjectRepo
	notes    *NotificationService
	fx       Effects
}

func NewTaskService(tasks *repository.TaskRepo, users *repository.UserRepo, projects *repository.ProjectRepo,
	notes *NotificationService, fx Effects) *TaskService {
	return &TaskService{tasks: tasks, users: users, projects: projects, notes: notes, fx: fx.withDefaults()}
}

// TaskInput is the payload of Create.
type TaskInput struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	Deadline       *time.Time `json:"deadline"`
	ProjectID      *uint64    `json:"project_id"`
	AssigneeID     *uint64    `json:"assigned_to_id"`
	RequiredSkills []string   `json:"required_skills"`
}

// TaskEdit lists the fields Edit may change; nil fields are kept.
type TaskEdit struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Priority       *string    `json:"priority"`
	Deadline       *time.Time `json:"deadline"`
	ClearDeadline  bool       `json:"clear_deadline"`
	RequiredSkills *[]string  `json:"required_skills"`
}

// TaskFilter narrows List.  Status accepts the canonical names and TODO.
type TaskFilter struct {
	ProjectID  uint64
	AssigneeID uint64
	Statuses   []string
	Priority   string
	Search     string
	Page       int
	PageSize   int
}

// TaskPage is one page of List.
type TaskPage struct {
	Items    []model.Task `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

const maxTitle = 200

func (s *TaskService) Create(ctx context.Context, caller model.User, in TaskInput) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskCreate, policy.Any) {
		return model.Task{}, forbidden("create tasks")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxTitle {
		return model.Task{}, invalid("title is required and at most %d characters", maxTitle)
	}
	priority := model.PriorityMedium
	if in.Priority != "" {
		p, ok := model.ParsePriority(in.Priority)
		if !ok {
			return model.Task{}, invalid("unknown priority %q", in.Priority)
		}
		priority = p
	}
	if in.Deadline != nil && in.Deadline.Before(time.Now()) {
		return model.Task{}, invalid("deadline must be in the future")
	}
	if in.ProjectID != nil {
		if _, err := s.projects.Get(ctx, *in.ProjectID); err != nil {
			return model.Task{}, fromRepo(err, "project")
		}
	}

	t := model.Task{
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Status:         model.StatusPending,
		Priority:       priority,
		Deadline:       utcPtr(in.Deadline),
		CreatorID:      caller.ID,
		ProjectID:      in.ProjectID,
		RequiredSkills: model.CleanSkills(in.RequiredSkills),
	}
	var assignee model.User
	if in.AssigneeID != nil {
		u, err := s.assignable(ctx, *in.AssigneeID)
		if err != nil {
			return model.Task{}, err
		}
		assignee = u
		t.AssignedToID = &u.ID
		t.Status = model.StatusAssigned
	}
	if err := s.tasks.Create(ctx, &t); err != nil {
		return model.Task{}, err
	}

	s.fx.Log.Info("task created", zap.Uint64("task_id", t.ID), zap.Uint64("creator_id", caller.ID))
	s.fx.publish(ctx, realtime.TaskCreated{Task: t})
	if t.AssignedToID != nil {
		s.notifyAssigned(ctx, assignee, t)
	}
	s.afterProjectChange(ctx, t.ProjectID)
	s.fx.invalidate(ctx, taskPaths(t)...)
	return t, nil
}

// Get returns a task the caller may view.  A dangling assignee is cleared
// before the task is returned.
func (s *TaskService) Get(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if _, err := s.UnassignIfUserNotExists(ctx, id); err != nil {
		return model.Task{}, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	owned, err := s.viewer(ctx, caller, t)
	if err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskView, policy.Owned(owned)) {
		return model.Task{}, forbidden("view this task")
	}
	return t, nil
}

// List runs the orphan sweep and returns the tasks visible to the caller:
// staff see everything, employees their own assignments and clients the
// tasks of their projects.
func (s *TaskService) List(ctx context.Context, caller model.User, f TaskFilter) (TaskPage, error) {
	if err := authenticated(caller); err != nil {
		return TaskPage{}, err
	}
	q := repository.TaskQuery{
		ProjectID:  f.ProjectID,
		AssigneeID: f.AssigneeID,
		Search:     strings.TrimSpace(f.Search),
		Page:       f.Page,
		PageSize:   f.PageSize,
	}
	for _, raw := range f.Statuses {
		st, ok := model.ParseTaskStatus(raw)
		if !ok {
			return TaskPage{}, invalid("unknown status %q", raw)
		}
		q.Statuses = append(q.Statuses, st)
	}
	if f.Priority != "" {
		p, ok := model.ParsePriority(f.Priority)
		if !ok {
			return TaskPage{}, invalid("unknown priority %q", f.Priority)
		}
		q.Priority = p
	}

	if !policy.Can(caller.Role, policy.TaskView, policy.Any) {
		switch caller.Role {
		case model.RoleClient:
			q.ClientID = caller.ID
		default:
			q.AssigneeID = caller.ID
		}
	}

	if n, err := s.tasks.UnassignOrphans(ctx); err != nil {
		s.fx.Log.Warn("orphan repair failed", zap.Error(err))
	} else if n > 0 {
		s.fx.Log.Info("orphaned tasks unassigned", zap.Int64("count", n))
	}

	items, total, err := s.tasks.Search(ctx, q)
	if err != nil {
		return TaskPage{}, err
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return TaskPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Edit changes the descriptive fields of a task.  Moving the deadline of
// an assigned task tells the assignee.
func (s *TaskService) Edit(ctx context.Context, caller model.User, id uint64, in TaskEdit) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskEdit, policy.Any) {
		return model.Task{}, forbidden("edit tasks")
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	after := before
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > maxTitle {
			return model.Task{}, invalid("title is required and at most %d characters", maxTitle)
		}
		after.Title = title
	}
	if in.Description != nil {
		after.Description = strings.TrimSpace(*in.Description)
	}
	if in.Priority != nil {
		p, ok := model.ParsePriority(*in.Priority)
		if !ok {
			return model.Task{}, invalid("unknown priority %q", *in.Priority)
		}
		after.Priority = p
	}
	switch {
	case in.ClearDeadline:
		after.Deadline = nil
	case in.Deadline != nil:
		after.Deadline = utcPtr(in.Deadline)
	}
	if in.RequiredSkills != nil {
		after.RequiredSkills = model.CleanSkills(*in.RequiredSkills)
	}

	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	if after.AssignedToID != nil && !sameTime(before.Deadline, after.Deadline) {
		msg := fmt.Sprintf("The deadline of %q was changed", after.Title)
		if after.Deadline != nil {
			msg = fmt.Sprintf("The deadline of %q moved to %s", after.Title, after.Deadline.Format(time.RFC1123))
		}
		s.notes.notifyID(ctx, *after.AssignedToID, model.NotifyTaskRescheduled, "Task rescheduled", msg, taskLink(after.ID))
	}
	return after, nil
}

// Delete removes a task.  Only managers may delete; the role is checked
// before the task is read.
func (s *TaskService) Delete(ctx context.Context, caller model.User, id uint64) error {
	if err := authenticated(caller); err != nil {
		return err
	}
	if !policy.Can(caller.Role, policy.TaskDelete, policy.Any) {
		return forbidden("delete tasks")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fromRepo(err, "task")
	}
	s.fx.Log.Info("task deleted", zap.Uint64("task_id", id), zap.Uint64("user_id", caller.ID))
	s.fx.publish(ctx, realtime.TaskDeleted{ID: id, ProjectID: t.ProjectID})
	s.afterProjectChange(ctx, t.ProjectID)
	s.fx.invalidate(ctx, taskPaths(t)...)
	return nil
}

// Assign hands the task to userID.  Every call produces one notification
// and one task-assigned broadcast, even when the assignee is unchanged.
func (s *TaskService) Assign(ctx context.Context, caller model.User, id, userID uint64) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskAssign, policy.Any) {
		return model.Task{}, forbidden("assign tasks")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	u, err := s.assignable(ctx, userID)
	if err != nil {
		return model.Task{}, err
	}
	return s.assign(ctx, t, u)
}

// AutoAssign picks the employee holding every required skill with the
// fewest open tasks, preferring experience and then the lower id.
func (s *TaskService) AutoAssign(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskAssign, policy.Any) {
		return model.Task{}, forbidden("assign tasks")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	candidates, err := s.users.ListCandidates(ctx, model.RoleEmployee)
	if err != nil {
		return model.Task{}, err
	}
	best, ok := pickAssignee(candidates, t.RequiredSkills)
	if !ok {
		return model.Task{}, conflict("no employee has the required skills")
	}
	return s.assign(ctx, t, best)
}

// pickAssignee ranks the eligible candidates.
func pickAssignee(candidates []repository.Candidate, required []string) (model.User, bool) {
	eligible := candidates[:0:0]
	for _, c := range candidates {
		if c.HasSkills(required) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return model.User{}, false
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.OpenTasks != b.OpenTasks {
			return a.OpenTasks < b.OpenTasks
		}
		if a.Experience != b.Experience {
			return a.Experience > b.Experience
		}
		return a.ID < b.ID
	})
	return eligible[0].User, true
}

func (s *TaskService) assign(ctx context.Context, t model.Task, u model.User) (model.Task, error) {
	if t.Status == model.StatusDone {
		return model.Task{}, conflict("task is already done")
	}
	before := t
	t.AssignedToID = &u.ID
	t.Status = model.StatusAssigned
	t.Accepted = false
	t.DeclineReason = ""
	if err := s.tasks.Update(ctx, &t); err != nil {
		return model.Task{}, fromRepo(err, "task")
	}
	s.fx.Log.Info("task assigned", zap.Uint64("task_id", t.ID), zap.Uint64("assignee_id", u.ID))
	s.fx.publish(ctx, realtime.TaskAssigned{Task: t, AssigneeID: u.ID})
	s.notifyAssigned(ctx, u, t)
	s.afterStatusChange(ctx, before, t)
	s.fx.invalidate(ctx, taskPaths(t)...)
	return t, nil
}

// Unassign clears the assignee and returns the task to PENDING.
func (s *TaskService) Unassign(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskUnassign, policy.Any) {
		return model.Task{}, forbidden("unassign tasks")
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	return s.unassign(ctx, t)
}

func (s *TaskService) unassign(ctx context.Context, before model.Task) (model.Task, error) {
	after := before
	after.AssignedToID = nil
	after.Status = model.StatusPending
	after.Accepted = false
	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	return after, nil
}

// Accept is the assignee taking on the task.  The creator is told.
func (s *TaskService) Accept(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	before, err := s.assigneeAction(ctx, caller, id, policy.TaskAccept, "accept this task")
	if err != nil {
		return model.Task{}, err
	}
	after := before
	if err := move(&after, model.StatusAccepted); err != nil {
		return model.Task{}, err
	}
	after.Accepted = true
	after.DeclineReason = ""
	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	s.notifyCreator(ctx, caller, after, model.NotifyTaskAccepted, "Task accepted",
		fmt.Sprintf("%s accepted %q", caller.Name, after.Title))
	return after, nil
}

// Decline is the assignee refusing the task.  A reason is required and is
// forwarded to the creator.
func (s *TaskService) Decline(ctx context.Context, caller model.User, id uint64, reason string) (model.Task, error) {
	before, err := s.assigneeAction(ctx, caller, id, policy.TaskDecline, "decline this task")
	if err != nil {
		return model.Task{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Task{}, invalid("a reason is required to decline a task")
	}
	after := before
	if err := move(&after, model.StatusDeclined); err != nil {
		return model.Task{}, err
	}
	after.Accepted = false
	after.DeclineReason = reason
	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	s.notifyCreator(ctx, caller, after, model.NotifyTaskDeclined, "Task declined",
		fmt.Sprintf("%s declined %q: %s", caller.Name, after.Title, reason))
	return after, nil
}

// Start moves an accepted task into progress.
func (s *TaskService) Start(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	before, err := s.assigneeAction(ctx, caller, id, policy.TaskStart, "start this task")
	if err != nil {
		return model.Task{}, err
	}
	after := before
	if err := move(&after, model.StatusInProgress); err != nil {
		return model.Task{}, err
	}
	after.Accepted = true
	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	return after, nil
}

// Complete marks the task DONE.  The assignee may complete accepted work;
// managers may close any open task.
func (s *TaskService) Complete(ctx context.Context, caller model.User, id uint64) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskComplete, policy.Owned(t.IsAssignedTo(caller.ID))) {
		return model.Task{}, forbidden("complete this task")
	}
	if t.Status == model.StatusDone {
		return model.Task{}, conflict("task is already done")
	}
	if !policy.Can(caller.Role, policy.TaskComplete, policy.Any) && t.Status != model.StatusAccepted && t.Status != model.StatusInProgress {
		return model.Task{}, conflict("accept the task before completing it")
	}
	return s.complete(ctx, caller, t)
}

func (s *TaskService) complete(ctx context.Context, caller model.User, before model.Task) (model.Task, error) {
	after := before
	after.Status = model.StatusDone
	if err := s.tasks.Update(ctx, &after); err != nil {
		return model.Task{}, fromRepo(err, "task")
	}
	s.fx.Log.Info("task completed", zap.Uint64("task_id", after.ID), zap.Uint64("user_id", caller.ID))
	s.fx.publish(ctx, realtime.TaskCompleted{Task: after})
	s.notifyCreator(ctx, caller, after, model.NotifyTaskCompleted, "Task completed",
		fmt.Sprintf("%s completed %q", caller.Name, after.Title))
	s.afterStatusChange(ctx, before, after)
	s.fx.invalidate(ctx, taskPaths(after)...)
	return after, nil
}

// UpdateStatus moves the task along the transition table.  DONE and
// PENDING go through Complete and Unassign so their side effects run;
// DECLINED needs a reason and is only reachable through Decline.
func (s *TaskService) UpdateStatus(ctx context.Context, caller model.User, id uint64, status string) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	to, ok := model.ParseTaskStatus(status)
	if !ok {
		return model.Task{}, invalid("unknown status %q", status)
	}
	before, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, policy.TaskStatus, policy.Owned(before.IsAssignedTo(caller.ID))) {
		return model.Task{}, forbidden("change the status of this task")
	}
	if !model.CanTransition(before.Status, to) {
		return model.Task{}, conflict("cannot move a task from %s to %s", before.Status, to)
	}
	if to == before.Status {
		return before, nil
	}

	switch to {
	case model.StatusDone:
		return s.complete(ctx, caller, before)
	case model.StatusPending:
		return s.unassign(ctx, before)
	case model.StatusDeclined:
		return model.Task{}, invalid("declining a task requires a reason")
	case model.StatusAssigned:
		if before.AssignedToID == nil {
			return model.Task{}, invalid("task has no assignee")
		}
	}
	after := before
	after.Status = to
	switch to {
	case model.StatusAccepted, model.StatusInProgress:
		after.Accepted = true
	case model.StatusAssigned:
		after.Accepted = false
	}
	if err := s.save(ctx, before, &after); err != nil {
		return model.Task{}, err
	}
	return after, nil
}

// UnassignIfUserNotExists clears the assignee of a task whose assignee row
// is gone.  It reports whether anything changed and is safe to repeat.
func (s *TaskService) UnassignIfUserNotExists(ctx context.Context, taskID uint64) (bool, error) {
	changed, err := s.tasks.UnassignIfUserMissing(ctx, taskID)
	if err != nil {
		return false, err
	}
	if changed {
		s.fx.Log.Info("orphaned task unassigned", zap.Uint64("task_id", taskID))
		pending := model.StatusPending
		s.fx.publish(ctx, realtime.TaskUpdated{ID: taskID, Patch: realtime.TaskPatch{Status: &pending, Unassigned: true}})
		s.fx.invalidate(ctx, pathTasks, fmt.Sprintf("%s/%d", pathTasks, taskID), pathDashboard)
	}
	return changed, nil
}

func (s *TaskService) load(ctx context.Context, id uint64) (model.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	return t, fromRepo(err, "task")
}

// save writes after and broadcasts what changed.
func (s *TaskService) save(ctx context.Context, before model.Task, after *model.Task) error {
	if err := s.tasks.Update(ctx, after); err != nil {
		return fromRepo(err, "task")
	}
	if patch := realtime.Diff(before, *after); !patch.Empty() {
		s.fx.publish(ctx, realtime.TaskUpdated{ID: after.ID, Patch: patch})
	}
	s.afterStatusChange(ctx, before, *after)
	s.fx.invalidate(ctx, taskPaths(*after)...)
	return nil
}

// assigneeAction loads a task the caller must be assigned to.
func (s *TaskService) assigneeAction(ctx context.Context, caller model.User, id uint64, action policy.Action, what string) (model.Task, error) {
	if err := authenticated(caller); err != nil {
		return model.Task{}, err
	}
	t, err := s.load(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !policy.Can(caller.Role, action, policy.Owned(t.IsAssignedTo(caller.ID))) {
		return model.Task{}, forbidden(what)
	}
	return t, nil
}

func (s *TaskService) assignable(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, fromRepo(err, "assignee")
	}
	if u.Role == model.RoleClient {
		return model.User{}, invalid("clients cannot be assigned tasks")
	}
	return u, nil
}

// viewer reports whether the caller is related to the task: assignee,
// creator, or client of its project.
func (s *TaskService) viewer(ctx context.Context, caller model.User, t model.Task) (bool, error) {
	if t.IsAssignedTo(caller.ID) || t.CreatorID == caller.ID {
		return true, nil
	}
	if t.ProjectID == nil || caller.Role != model.RoleClient {
		return false, nil
	}
	p, err := s.projects.Get(ctx, *t.ProjectID)
	if err != nil {
		return false, fromRepo(err, "project")
	}
	return p.ClientID != nil && *p.ClientID == caller.ID, nil
}

func (s *TaskService) notifyAssigned(ctx context.Context, u model.User, t model.Task) {
	if _, err := s.notes.Notify(ctx, u, model.NotifyTaskAssigned, "New task assigned",
		fmt.Sprintf("You have been assigned %q", t.Title), taskLink(t.ID)); err != nil {
		s.fx.Log.Warn("assignment notification failed", zap.Uint64("task_id", t.ID), zap.Error(err))
	}
}

// notifyCreator tells the creator about an assignee action, unless the
// creator performed it.
func (s *TaskService) notifyCreator(ctx context.Context, caller model.User, t model.Task, typ model.NotificationType, title, msg string) {
	if t.CreatorID == caller.ID {
		return
	}
	s.notes.notifyID(ctx, t.CreatorID, typ, title, msg, taskLink(t.ID))
}

func (s *TaskService) afterStatusChange(ctx context.Context, before, after model.Task) {
	if (before.Status == model.StatusDone) != (after.Status == model.StatusDone) {
		s.afterProjectChange(ctx, after.ProjectID)
	}
}

func (s *TaskService) afterProjectChange(ctx context.Context, projectID *uint64) {
	if projectID == nil {
		return
	}
	syncProgress(ctx, s.projects, s.fx, *projectID)
}

// move applies a transition-checked status change.
func move(t *model.Task, to model.TaskStatus) error {
	if !model.CanTransition(t.Status, to) {
		return conflict("cannot move a task from %s to %s", t.Status, to)
	}
	t.Status = to
	return nil
}

func taskLink(id uint64) *string {
	l := fmt.Sprintf("/tasks/%d", id)
	return &l
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
