package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/repositories"
)

type CreateProjectInput struct {
	ClientID  int64
	Name      string
	Status    models.ProjectStatus
	Priority  models.TaskPriority
	StartDate *time.Time
	DueDate   *time.Time
	Budget    *float64
}

type ProjectPatch struct {
	Name      *string
	Status    *models.ProjectStatus
	Priority  *models.TaskPriority
	StartDate *time.Time
	DueDate   *time.Time
	Budget    *float64
}

// ProjectService derives project-level progress from child tasks and owns
// project notes, documents and soft delete.
type ProjectService struct {
	repo    repositories.ProjectRepository
	clients repositories.ClientRepository
}

func NewProjectService(repo repositories.ProjectRepository, clients repositories.ClientRepository) *ProjectService {
	return &ProjectService{repo: repo, clients: clients}
}

func (s *ProjectService) findLive(ctx context.Context, id int64) (*models.Project, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if p == nil || p.Deleted {
		return nil, fmt.Errorf("%w: project %d", errs.ErrNotFound, id)
	}
	return p, nil
}

// staff may touch only projects carrying a task assigned to them
func (s *ProjectService) requireProjectAccess(ctx context.Context, actor Actor, projectID int64) error {
	if actor.RoleID != authz.RoleStaff {
		return nil
	}
	ok, err := s.repo.HasAssignedTask(ctx, projectID, actor.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: not your project", errs.ErrForbidden)
	}
	return nil
}

func (s *ProjectService) Create(ctx context.Context, actor Actor, input CreateProjectInput) (*models.Project, error) {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", errs.ErrValidation)
	}
	if input.Budget != nil && *input.Budget < 0 {
		return nil, fmt.Errorf("%w: budget must be >= 0", errs.ErrValidation)
	}

	client, err := s.clients.FindByID(ctx, input.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if client == nil || client.Deleted {
		return nil, fmt.Errorf("%w: client %d not found", errs.ErrValidation, input.ClientID)
	}

	if input.Status == "" {
		input.Status = models.ProjectPlanning
	}
	if !models.IsAllowedProjectStatus(input.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, input.Status)
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}

	now := time.Now()
	p := &models.Project{
		ClientID:  input.ClientID,
		Name:      input.Name,
		Status:    input.Status,
		Priority:  input.Priority,
		StartDate: input.StartDate,
		DueDate:   input.DueDate,
		Budget:    input.Budget,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Store(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return p, nil
}

func (s *ProjectService) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	// soft-deleted projects stay fetchable by direct id
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %d", errs.ErrNotFound, id)
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, filter models.ProjectFilter, limit, offset int) ([]models.Project, int, error) {
	projects, err := s.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return projects, total, nil
}

func (s *ProjectService) Update(ctx context.Context, actor Actor, id int64, patch ProjectPatch) (*models.Project, error) {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionEdit); err != nil {
		return nil, err
	}
	current, err := s.findLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, actor, id); err != nil {
		return nil, err
	}

	update := *current
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", errs.ErrValidation)
		}
		update.Name = *patch.Name
	}
	if patch.Status != nil {
		if !models.IsAllowedProjectStatus(*patch.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, *patch.Status)
		}
		update.Status = *patch.Status
	}
	if patch.Priority != nil {
		update.Priority = *patch.Priority
	}
	if patch.StartDate != nil {
		update.StartDate = patch.StartDate
	}
	if patch.DueDate != nil {
		update.DueDate = patch.DueDate
	}
	if patch.Budget != nil {
		if *patch.Budget < 0 {
			return nil, fmt.Errorf("%w: budget must be >= 0", errs.ErrValidation)
		}
		update.Budget = patch.Budget
	}

	update.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return &update, nil
}

func (s *ProjectService) SoftDelete(ctx context.Context, actor Actor, id int64) error {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionDelete); err != nil {
		return err
	}
	if _, err := s.findLive(ctx, id); err != nil {
		return err
	}
	// no cascade: child tasks stay addressable by id, they just drop out
	// of project-scoped listings
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

// RecomputeProgress refreshes total_tasks / completed_tasks /
// completion_percentage from the project's non-deleted tasks. Called
// synchronously after every task status mutation.
func (s *ProjectService) RecomputeProgress(ctx context.Context, projectID int64) (*models.Project, error) {
	p, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %d", errs.ErrNotFound, projectID)
	}

	total, completed, err := s.repo.TaskCounts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	percentage := 0
	if total > 0 {
		percentage = int(math.Round(100 * float64(completed) / float64(total)))
	}
	if err := s.repo.UpdateProgress(ctx, projectID, total, completed, percentage); err != nil {
		log.Printf("[project][recompute][err] id=%d: %v", projectID, err)
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}

	p.TotalTasks = total
	p.CompletedTasks = completed
	p.CompletionPercentage = percentage
	return p, nil
}

func (s *ProjectService) AddNote(ctx context.Context, actor Actor, projectID int64, content string) (*models.ProjectNote, error) {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionEdit); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: note content is required", errs.ErrValidation)
	}
	if _, err := s.findLive(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, actor, projectID); err != nil {
		return nil, err
	}
	note := &models.ProjectNote{ProjectID: projectID, AuthorID: actor.UserID, Content: content}
	if err := s.repo.AddNote(ctx, note); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return note, nil
}

// findLiveNote resolves a note for mutation and applies the staff
// ownership gate against its owning project.
func (s *ProjectService) findLiveNote(ctx context.Context, actor Actor, noteID int64) (*models.ProjectNote, error) {
	note, err := s.repo.FindNote(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if note == nil || note.Deleted {
		return nil, fmt.Errorf("%w: note %d", errs.ErrNotFound, noteID)
	}
	if err := s.requireProjectAccess(ctx, actor, note.ProjectID); err != nil {
		return nil, err
	}
	return note, nil
}

func (s *ProjectService) EditNote(ctx context.Context, actor Actor, noteID int64, content string) error {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionEdit); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: note content is required", errs.ErrValidation)
	}
	if _, err := s.findLiveNote(ctx, actor, noteID); err != nil {
		return err
	}
	found, err := s.repo.UpdateNoteContent(ctx, noteID, content)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if !found {
		return fmt.Errorf("%w: note %d", errs.ErrNotFound, noteID)
	}
	return nil
}

// Note removal is part of editing the project, so staff may remove notes
// on their assigned projects.
func (s *ProjectService) SoftDeleteNote(ctx context.Context, actor Actor, noteID int64) error {
	if err := requireMutate(actor, authz.ResourceProjects, authz.ActionEdit); err != nil {
		return err
	}
	if _, err := s.findLiveNote(ctx, actor, noteID); err != nil {
		return err
	}
	found, err := s.repo.SoftDeleteNote(ctx, noteID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if !found {
		return fmt.Errorf("%w: note %d", errs.ErrNotFound, noteID)
	}
	return nil
}

func (s *ProjectService) Notes(ctx context.Context, projectID int64) ([]models.ProjectNote, error) {
	return s.repo.ListNotes(ctx, projectID)
}

func (s *ProjectService) AddDocument(ctx context.Context, actor Actor, doc *models.ProjectDocument) error {
	if err := requireMutate(actor, authz.ResourceDocuments, authz.ActionCreate); err != nil {
		return err
	}
	if doc.Name == "" || doc.StorageRef == "" {
		return fmt.Errorf("%w: document name and storage_ref are required", errs.ErrValidation)
	}
	if _, err := s.findLive(ctx, doc.ProjectID); err != nil {
		return err
	}
	if err := s.repo.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

func (s *ProjectService) Documents(ctx context.Context, projectID int64) ([]models.ProjectDocument, error) {
	return s.repo.ListDocuments(ctx, projectID)
}
