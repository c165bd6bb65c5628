package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"caerp/internal/models"
)

type ProjectRepository interface {
	Store(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, id int64) (*models.Project, error)
	FindAll(ctx context.Context, filter models.ProjectFilter, limit, offset int) ([]models.Project, error)
	Count(ctx context.Context, filter models.ProjectFilter) (int, error)
	Update(ctx context.Context, p *models.Project) error
	SoftDelete(ctx context.Context, id int64) error

	// TaskCounts returns (total, completed) over the project's non-deleted
	// tasks; completed counts Completed and Invoiced statuses.
	TaskCounts(ctx context.Context, projectID int64) (int, int, error)
	UpdateProgress(ctx context.Context, id int64, total, completed, percentage int) error

	// HasAssignedTask reports whether the project contains a non-deleted
	// task assigned to the user. Backs the staff ownership gate.
	HasAssignedTask(ctx context.Context, projectID, userID int64) (bool, error)

	AddNote(ctx context.Context, note *models.ProjectNote) error
	FindNote(ctx context.Context, noteID int64) (*models.ProjectNote, error)
	UpdateNoteContent(ctx context.Context, noteID int64, content string) (bool, error)
	SoftDeleteNote(ctx context.Context, noteID int64) (bool, error)
	ListNotes(ctx context.Context, projectID int64) ([]models.ProjectNote, error)

	AddDocument(ctx context.Context, doc *models.ProjectDocument) error
	ListDocuments(ctx context.Context, projectID int64) ([]models.ProjectDocument, error)
}

type projectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) ProjectRepository {
	return &projectRepository{db: db}
}

const projectColumns = `id, client_id, name, status, priority, start_date, due_date, budget,
       completion_percentage, total_tasks, completed_tasks, deleted, created_at, updated_at`

func scanProject(row interface{ Scan(...interface{}) error }, p *models.Project) error {
	return row.Scan(
		&p.ID, &p.ClientID, &p.Name, &p.Status, &p.Priority, &p.StartDate, &p.DueDate, &p.Budget,
		&p.CompletionPercentage, &p.TotalTasks, &p.CompletedTasks, &p.Deleted, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *projectRepository) Store(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (client_id, name, status, priority, start_date, due_date, budget, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		p.ClientID, p.Name, p.Status, p.Priority, p.StartDate, p.DueDate, p.Budget,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *projectRepository) FindByID(ctx context.Context, id int64) (*models.Project, error) {
	p := &models.Project{}
	err := scanProject(r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1`, id), p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func buildProjectConditions(filter models.ProjectFilter) ([]string, []interface{}) {
	conditions := []string{"deleted = FALSE"}
	args := []interface{}{}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	return conditions, args
}

func (r *projectRepository) FindAll(ctx context.Context, filter models.ProjectFilter, limit, offset int) ([]models.Project, error) {
	conditions, args := buildProjectConditions(filter)
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *projectRepository) Count(ctx context.Context, filter models.ProjectFilter) (int, error) {
	conditions, args := buildProjectConditions(filter)
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE `+strings.Join(conditions, " AND "), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

func (r *projectRepository) Update(ctx context.Context, p *models.Project) error {
	query := `
		UPDATE projects SET
			client_id=$1, name=$2, status=$3, priority=$4,
			start_date=$5, due_date=$6, budget=$7, updated_at=$8
		WHERE id=$9`
	_, err := r.db.ExecContext(ctx, query,
		p.ClientID, p.Name, p.Status, p.Priority,
		p.StartDate, p.DueDate, p.Budget, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (r *projectRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE projects SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *projectRepository) TaskCounts(ctx context.Context, projectID int64) (int, int, error) {
	var total, completed int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ($2, $3))
		FROM tasks
		WHERE project_id=$1 AND deleted=FALSE`,
		projectID, models.StatusCompleted, models.StatusInvoiced,
	).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("task counts: %w", err)
	}
	return total, completed, nil
}

func (r *projectRepository) UpdateProgress(ctx context.Context, id int64, total, completed, percentage int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET
			total_tasks=$1, completed_tasks=$2, completion_percentage=$3, updated_at=NOW()
		WHERE id=$4`,
		total, completed, percentage, id)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (r *projectRepository) HasAssignedTask(ctx context.Context, projectID, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tasks
			WHERE project_id=$1 AND assignee_id=$2 AND deleted=FALSE
		)`, projectID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("has assigned task: %w", err)
	}
	return ok, nil
}

func (r *projectRepository) FindNote(ctx context.Context, noteID int64) (*models.ProjectNote, error) {
	n := &models.ProjectNote{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, author_id, content, deleted, created_at, updated_at
		FROM project_notes WHERE id=$1`, noteID).
		Scan(&n.ID, &n.ProjectID, &n.AuthorID, &n.Content, &n.Deleted, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func (r *projectRepository) AddNote(ctx context.Context, note *models.ProjectNote) error {
	query := `
		INSERT INTO project_notes (project_id, author_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, note.ProjectID, note.AuthorID, note.Content).
		Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
}

func (r *projectRepository) UpdateNoteContent(ctx context.Context, noteID int64, content string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE project_notes SET content=$1, updated_at=NOW() WHERE id=$2 AND deleted=FALSE`,
		content, noteID)
	if err != nil {
		return false, fmt.Errorf("update note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *projectRepository) SoftDeleteNote(ctx context.Context, noteID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE project_notes SET deleted=TRUE, updated_at=NOW() WHERE id=$1 AND deleted=FALSE`, noteID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *projectRepository) ListNotes(ctx context.Context, projectID int64) ([]models.ProjectNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, author_id, content, deleted, created_at, updated_at
		FROM project_notes
		WHERE project_id=$1 AND deleted=FALSE
		ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectNote
	for rows.Next() {
		var n models.ProjectNote
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.AuthorID, &n.Content, &n.Deleted, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *projectRepository) AddDocument(ctx context.Context, doc *models.ProjectDocument) error {
	query := `
		INSERT INTO project_documents (project_id, name, size, storage_ref, uploaded_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, uploaded_at`
	return r.db.QueryRowContext(ctx, query, doc.ProjectID, doc.Name, doc.Size, doc.StorageRef).
		Scan(&doc.ID, &doc.UploadedAt)
}

func (r *projectRepository) ListDocuments(ctx context.Context, projectID int64) ([]models.ProjectDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, name, size, storage_ref, uploaded_at
		FROM project_documents
		WHERE project_id=$1
		ORDER BY uploaded_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectDocument
	for rows.Next() {
		var d models.ProjectDocument
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Size, &d.StorageRef, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
