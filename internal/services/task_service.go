package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/repositories"
)

// Actor identifies the requesting user for permission checks.
type Actor struct {
	UserID int64
	RoleID int
}

// ProgressRecomputer refreshes a project's derived fields after a task
// status mutation. Implemented by ProjectService.
type ProgressRecomputer interface {
	RecomputeProgress(ctx context.Context, projectID int64) (*models.Project, error)
}

type CreateTaskInput struct {
	ProjectID      int64
	AssigneeID     int64
	Title          string
	Description    string
	DueDate        string // RFC3339
	Priority       models.TaskPriority
	EstimatedHours float64
	Cost           float64
	Tags           []string
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	AssigneeID     *int64
	Title          *string
	Description    *string
	DueDate        *string // RFC3339, empty string clears
	Priority       *models.TaskPriority
	Status         *models.TaskStatus
	EstimatedHours *float64
	Cost           *float64
	Tags           []string
}

type TimeEntryInput struct {
	Date        string // RFC3339 or 2006-01-02
	Hours       float64
	Description string
}

// TaskService owns the task state machine and all task-level mutations.
type TaskService interface {
	Create(ctx context.Context, actor Actor, input CreateTaskInput) (*models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.TaskView, error)
	List(ctx context.Context, actor Actor, filter models.TaskFilter, limit, offset int) ([]models.TaskView, int, error)
	Update(ctx context.Context, actor Actor, id int64, patch TaskPatch) (*models.Task, error)
	ChangeStatus(ctx context.Context, actor Actor, id int64, to models.TaskStatus) (*models.Task, error)
	Assign(ctx context.Context, actor Actor, id int64, assigneeID int64) (*models.Task, error)
	SoftDelete(ctx context.Context, actor Actor, id int64) error

	AddSubtask(ctx context.Context, actor Actor, taskID int64, title string) (*models.Subtask, error)
	AddComment(ctx context.Context, actor Actor, taskID int64, text string) (*models.Comment, error)
	AddAttachment(ctx context.Context, actor Actor, at *models.Attachment) error
	AddTimeEntry(ctx context.Context, actor Actor, taskID int64, input TimeEntryInput) (*models.TimeEntry, float64, error)

	Subtasks(ctx context.Context, taskID int64) ([]models.Subtask, error)
	Comments(ctx context.Context, taskID int64) ([]models.Comment, error)
	Attachments(ctx context.Context, taskID int64) ([]models.Attachment, error)
	TimeEntries(ctx context.Context, taskID int64) ([]models.TimeEntry, error)
}

type taskService struct {
	repo     repositories.TaskRepository
	projects repositories.ProjectRepository
	progress ProgressRecomputer
}

func NewTaskService(repo repositories.TaskRepository, projects repositories.ProjectRepository, progress ProgressRecomputer) TaskService {
	return &taskService{repo: repo, projects: projects, progress: progress}
}

// findLive returns the task for mutation, treating soft-deleted as absent.
func (s *taskService) findLive(ctx context.Context, id int64) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if task == nil || task.Deleted {
		return nil, fmt.Errorf("%w: task %d", errs.ErrNotFound, id)
	}
	return task, nil
}

// staff may touch only tasks assigned to them
func staffOwns(actor Actor, task *models.Task) bool {
	if actor.RoleID != authz.RoleStaff {
		return true
	}
	return task.AssigneeID != nil && *task.AssigneeID == actor.UserID
}

func requireMutate(actor Actor, res authz.Resource, action authz.Action) error {
	if !authz.CanMutate(actor.RoleID, res, action) {
		return fmt.Errorf("%w: role %d cannot %s %s", errs.ErrForbidden, actor.RoleID, action, res)
	}
	return nil
}

func parseDueDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid due_date (RFC3339)", errs.ErrValidation)
	}
	return &t, nil
}

func (s *taskService) Create(ctx context.Context, actor Actor, input CreateTaskInput) (*models.Task, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", errs.ErrValidation)
	}
	if input.ProjectID == 0 {
		return nil, fmt.Errorf("%w: project_id is required", errs.ErrValidation)
	}
	if input.AssigneeID == 0 {
		return nil, fmt.Errorf("%w: assignee_id is required", errs.ErrValidation)
	}
	if strings.TrimSpace(input.DueDate) == "" {
		return nil, fmt.Errorf("%w: due_date is required", errs.ErrValidation)
	}
	if input.EstimatedHours < 0 || input.Cost < 0 {
		return nil, fmt.Errorf("%w: estimated_hours and cost must be >= 0", errs.ErrValidation)
	}
	if actor.RoleID == authz.RoleStaff && input.AssigneeID != actor.UserID {
		return nil, fmt.Errorf("%w: staff can assign only to self", errs.ErrForbidden)
	}

	due, err := parseDueDate(input.DueDate)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.FindByID(ctx, input.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if project == nil || project.Deleted {
		return nil, fmt.Errorf("%w: project %d not found", errs.ErrValidation, input.ProjectID)
	}

	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}

	now := time.Now()
	assignee := input.AssigneeID
	task := &models.Task{
		ProjectID:      input.ProjectID,
		AssigneeID:     &assignee,
		Title:          input.Title,
		Description:    input.Description,
		Status:         models.StatusPending,
		Priority:       input.Priority,
		DueDate:        due,
		EstimatedHours: input.EstimatedHours,
		Cost:           input.Cost,
		Tags:           pq.StringArray(input.Tags),
		InvoiceStatus:  models.NotInvoiced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Store(ctx, task); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	s.recompute(ctx, task.ProjectID)
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id int64) (*models.TaskView, error) {
	// soft-deleted tasks stay fetchable by direct id (undo affordance)
	view, err := s.repo.FindView(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if view == nil {
		return nil, fmt.Errorf("%w: task %d", errs.ErrNotFound, id)
	}
	return view, nil
}

func (s *taskService) List(ctx context.Context, actor Actor, filter models.TaskFilter, limit, offset int) ([]models.TaskView, int, error) {
	// staff see only their own assignments
	if actor.RoleID == authz.RoleStaff {
		uid := actor.UserID
		filter.AssigneeID = &uid
	}
	tasks, err := s.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return tasks, total, nil
}

func (s *taskService) Update(ctx context.Context, actor Actor, id int64, patch TaskPatch) (*models.Task, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, err
	}
	current, err := s.findLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staffOwns(actor, current) {
		return nil, fmt.Errorf("%w: not your task", errs.ErrForbidden)
	}

	update := *current
	statusChanged := false

	if patch.AssigneeID != nil {
		if actor.RoleID == authz.RoleStaff && *patch.AssigneeID != actor.UserID {
			return nil, fmt.Errorf("%w: staff can assign only to self", errs.ErrForbidden)
		}
		update.AssigneeID = patch.AssigneeID
	}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", errs.ErrValidation)
		}
		update.Title = *patch.Title
	}
	if patch.Description != nil {
		update.Description = *patch.Description
	}
	if patch.DueDate != nil {
		due, err := parseDueDate(*patch.DueDate)
		if err != nil {
			return nil, err
		}
		update.DueDate = due
	}
	if patch.Priority != nil {
		update.Priority = *patch.Priority
	}
	if patch.EstimatedHours != nil {
		if *patch.EstimatedHours < 0 {
			return nil, fmt.Errorf("%w: estimated_hours must be >= 0", errs.ErrValidation)
		}
		update.EstimatedHours = *patch.EstimatedHours
	}
	if patch.Cost != nil {
		if *patch.Cost < 0 {
			return nil, fmt.Errorf("%w: cost must be >= 0", errs.ErrValidation)
		}
		update.Cost = *patch.Cost
	}
	if patch.Tags != nil {
		update.Tags = pq.StringArray(patch.Tags)
	}
	if patch.Status != nil && *patch.Status != current.Status {
		if err := s.checkTransition(current.Status, *patch.Status); err != nil {
			return nil, err
		}
		update.Status = *patch.Status
		statusChanged = true
		if update.Status == models.StatusCompleted {
			// completed_at is derived, never settable directly
			now := time.Now()
			update.CompletedAt = &now
		}
	}

	update.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if statusChanged {
		s.recompute(ctx, update.ProjectID)
	}
	return &update, nil
}

func (s *taskService) checkTransition(from, to models.TaskStatus) error {
	if !models.IsAllowedTaskStatus(to) {
		return fmt.Errorf("%w: unknown status %q", errs.ErrValidation, to)
	}
	if to == models.StatusInvoiced {
		return fmt.Errorf("%w: %s is set by invoicing only", errs.ErrInvalidTransition, models.StatusInvoiced)
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, from, to)
	}
	return nil
}

func (s *taskService) ChangeStatus(ctx context.Context, actor Actor, id int64, to models.TaskStatus) (*models.Task, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, err
	}
	current, err := s.findLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staffOwns(actor, current) {
		return nil, fmt.Errorf("%w: not your task", errs.ErrForbidden)
	}
	if err := s.checkTransition(current.Status, to); err != nil {
		return nil, err
	}

	var completedAt *time.Time
	if to == models.StatusCompleted {
		now := time.Now()
		completedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, to, completedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	s.recompute(ctx, current.ProjectID)

	current.Status = to
	current.CompletedAt = completedAt
	current.UpdatedAt = time.Now()
	return current, nil
}

func (s *taskService) Assign(ctx context.Context, actor Actor, id int64, assigneeID int64) (*models.Task, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, err
	}
	if assigneeID == 0 {
		return nil, fmt.Errorf("%w: assignee_id is required", errs.ErrValidation)
	}
	current, err := s.findLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.RoleID == authz.RoleStaff && assigneeID != actor.UserID {
		return nil, fmt.Errorf("%w: staff can assign only to self", errs.ErrForbidden)
	}
	if err := s.repo.UpdateAssignee(ctx, id, assigneeID); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	current.AssigneeID = &assigneeID
	return current, nil
}

func (s *taskService) SoftDelete(ctx context.Context, actor Actor, id int64) error {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionDelete); err != nil {
		return err
	}
	current, err := s.findLive(ctx, id)
	if err != nil {
		return err
	}
	// owner/manager action: staff may delete only own-assigned tasks
	if !authz.IsElevated(actor.RoleID) && !staffOwns(actor, current) {
		return fmt.Errorf("%w: not your task", errs.ErrForbidden)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	s.recompute(ctx, current.ProjectID)
	return nil
}

func (s *taskService) AddSubtask(ctx context.Context, actor Actor, taskID int64, title string) (*models.Subtask, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: subtask title is required", errs.ErrValidation)
	}
	current, err := s.findLive(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !staffOwns(actor, current) {
		return nil, fmt.Errorf("%w: not your task", errs.ErrForbidden)
	}
	st := &models.Subtask{TaskID: taskID, Title: title, Status: models.SubtaskPending}
	if err := s.repo.AddSubtask(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return st, nil
}

func (s *taskService) AddComment(ctx context.Context, actor Actor, taskID int64, text string) (*models.Comment, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment text is required", errs.ErrValidation)
	}
	if _, err := s.findLive(ctx, taskID); err != nil {
		return nil, err
	}
	cm := &models.Comment{TaskID: taskID, AuthorID: actor.UserID, Text: text}
	if err := s.repo.AddComment(ctx, cm); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return cm, nil
}

func (s *taskService) AddAttachment(ctx context.Context, actor Actor, at *models.Attachment) error {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return err
	}
	if at.Name == "" || at.StorageRef == "" {
		return fmt.Errorf("%w: attachment name and storage_ref are required", errs.ErrValidation)
	}
	if _, err := s.findLive(ctx, at.TaskID); err != nil {
		return err
	}
	if err := s.repo.AddAttachment(ctx, at); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

func (s *taskService) AddTimeEntry(ctx context.Context, actor Actor, taskID int64, input TimeEntryInput) (*models.TimeEntry, float64, error) {
	if err := requireMutate(actor, authz.ResourceTasks, authz.ActionEdit); err != nil {
		return nil, 0, err
	}
	if input.Hours <= 0 {
		return nil, 0, fmt.Errorf("%w: hours must be > 0", errs.ErrValidation)
	}
	current, err := s.findLive(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}
	if !staffOwns(actor, current) {
		return nil, 0, fmt.Errorf("%w: not your task", errs.ErrForbidden)
	}

	date := time.Now()
	if strings.TrimSpace(input.Date) != "" {
		parsed, err := time.Parse(time.RFC3339, input.Date)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", input.Date)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: invalid date", errs.ErrValidation)
			}
		}
		date = parsed
	}

	te := &models.TimeEntry{TaskID: taskID, EntryDate: date, Hours: input.Hours, Description: input.Description}
	if err := s.repo.AddTimeEntry(ctx, te); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	// recompute, never increment, so actual_hours cannot drift
	hours, err := s.repo.RecomputeActualHours(ctx, taskID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return te, hours, nil
}

func (s *taskService) Subtasks(ctx context.Context, taskID int64) ([]models.Subtask, error) {
	return s.repo.ListSubtasks(ctx, taskID)
}

func (s *taskService) Comments(ctx context.Context, taskID int64) ([]models.Comment, error) {
	return s.repo.ListComments(ctx, taskID)
}

func (s *taskService) Attachments(ctx context.Context, taskID int64) ([]models.Attachment, error) {
	return s.repo.ListAttachments(ctx, taskID)
}

func (s *taskService) TimeEntries(ctx context.Context, taskID int64) ([]models.TimeEntry, error) {
	return s.repo.ListTimeEntries(ctx, taskID)
}

// recompute refreshes the owning project's derived fields right after the
// task write commits. A failed refresh is logged, not fatal to the task
// mutation that already landed.
func (s *taskService) recompute(ctx context.Context, projectID int64) {
	if s.progress == nil {
		return
	}
	if _, err := s.progress.RecomputeProgress(ctx, projectID); err != nil {
		log.Printf("[task][recompute][warn] project=%d: %v", projectID, err)
	}
}
