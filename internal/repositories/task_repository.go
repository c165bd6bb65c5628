package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"caerp/internal/models"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindView(ctx context.Context, id int64) (*models.TaskView, error)
	FindAll(ctx context.Context, filter models.TaskFilter, limit, offset int) ([]models.TaskView, error)
	Count(ctx context.Context, filter models.TaskFilter) (int, error)
	Update(ctx context.Context, task *models.Task) error
	SoftDelete(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus, completedAt *time.Time) error
	UpdateAssignee(ctx context.Context, id int64, assigneeID int64) error

	// MarkInvoiced performs the conditional billing write: the row is
	// claimed only while still Completed and not deleted. Returns false
	// when a concurrent batch already claimed it or the status moved.
	MarkInvoiced(ctx context.Context, id int64, invoiceNumber string, invoiceDate time.Time) (bool, error)
	ListInvoiceable(ctx context.Context, filter models.TaskFilter) ([]models.TaskView, error)

	AddSubtask(ctx context.Context, st *models.Subtask) error
	ListSubtasks(ctx context.Context, taskID int64) ([]models.Subtask, error)
	AddComment(ctx context.Context, cm *models.Comment) error
	ListComments(ctx context.Context, taskID int64) ([]models.Comment, error)
	AddAttachment(ctx context.Context, at *models.Attachment) error
	ListAttachments(ctx context.Context, taskID int64) ([]models.Attachment, error)
	AddTimeEntry(ctx context.Context, te *models.TimeEntry) error
	ListTimeEntries(ctx context.Context, taskID int64) ([]models.TimeEntry, error)

	// RecomputeActualHours resets actual_hours to the full sum of the
	// task's time entries and returns the new value.
	RecomputeActualHours(ctx context.Context, taskID int64) (float64, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `t.id, t.project_id, t.assignee_id, t.title, t.description, t.status, t.priority,
       t.due_date, t.estimated_hours, t.actual_hours, t.cost, t.tags,
       t.invoice_status, t.invoice_number, t.invoice_date, t.invoiced_at,
       t.completed_at, t.deleted, t.created_at, t.updated_at`

func scanTask(row interface{ Scan(...interface{}) error }, t *models.Task) error {
	return row.Scan(
		&t.ID, &t.ProjectID, &t.AssigneeID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueDate, &t.EstimatedHours, &t.ActualHours, &t.Cost, &t.Tags,
		&t.InvoiceStatus, &t.InvoiceNumber, &t.InvoiceDate, &t.InvoicedAt,
		&t.CompletedAt, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
	)
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			project_id, assignee_id, title, description, status, priority,
			due_date, estimated_hours, cost, tags, invoice_status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`
	if task.Tags == nil {
		task.Tags = pq.StringArray{}
	}
	return r.db.QueryRowContext(ctx, query,
		task.ProjectID, task.AssigneeID, task.Title, task.Description, task.Status, task.Priority,
		task.DueDate, task.EstimatedHours, task.Cost, task.Tags, task.InvoiceStatus,
		task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

func (r *taskRepository) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	t := &models.Task{}
	err := scanTask(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

const taskViewJoin = `
FROM tasks t
JOIN projects p ON p.id = t.project_id
LEFT JOIN users u ON u.id = t.assignee_id`

func (r *taskRepository) scanView(row *sql.Rows) (models.TaskView, error) {
	var v models.TaskView
	var assigneeID sql.NullInt64
	var assigneeName, assigneeAvatar sql.NullString
	err := row.Scan(
		&v.ID, &v.ProjectID, &v.AssigneeID, &v.Title, &v.Description, &v.Status, &v.Priority,
		&v.DueDate, &v.EstimatedHours, &v.ActualHours, &v.Cost, &v.Tags,
		&v.InvoiceStatus, &v.InvoiceNumber, &v.InvoiceDate, &v.InvoicedAt,
		&v.CompletedAt, &v.Deleted, &v.CreatedAt, &v.UpdatedAt,
		&v.Project.ID, &v.Project.Name,
		&assigneeID, &assigneeName, &assigneeAvatar,
	)
	if err != nil {
		return v, err
	}
	if assigneeID.Valid {
		v.AssignedTo = &models.UserRef{ID: assigneeID.Int64, Name: assigneeName.String, Avatar: assigneeAvatar.String}
	}
	return v, nil
}

const taskViewColumns = taskColumns + `,
       p.id, p.name, u.id, u.name, u.avatar_url`

func (r *taskRepository) FindView(ctx context.Context, id int64) (*models.TaskView, error) {
	query := `SELECT ` + taskViewColumns + taskViewJoin + ` WHERE t.id = $1`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get task view: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	v, err := r.scanView(rows)
	if err != nil {
		return nil, fmt.Errorf("get task view: %w", err)
	}
	return &v, nil
}

func buildTaskConditions(filter models.TaskFilter, conditions []string, args []interface{}) ([]string, []interface{}) {
	argID := len(args) + 1
	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("t.project_id = $%d", argID))
		args = append(args, *filter.ProjectID)
		argID++
	}
	if filter.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("t.assignee_id = $%d", argID))
		args = append(args, *filter.AssigneeID)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("t.priority = $%d", argID))
		args = append(args, *filter.Priority)
	}
	return conditions, args
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter, limit, offset int) ([]models.TaskView, error) {
	conditions := []string{"t.deleted = FALSE"}
	args := []interface{}{}
	conditions, args = buildTaskConditions(filter, conditions, args)

	query := `SELECT ` + taskViewColumns + taskViewJoin +
		` WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.TaskView
	for rows.Next() {
		v, err := r.scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *taskRepository) Count(ctx context.Context, filter models.TaskFilter) (int, error) {
	conditions := []string{"t.deleted = FALSE"}
	args := []interface{}{}
	conditions, args = buildTaskConditions(filter, conditions, args)

	query := `SELECT COUNT(*) FROM tasks t WHERE ` + strings.Join(conditions, " AND ")
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET
			assignee_id=$1, title=$2, description=$3, status=$4, priority=$5,
			due_date=$6, estimated_hours=$7, cost=$8, tags=$9,
			completed_at=$10, updated_at=$11
		WHERE id=$12`
	_, err := r.db.ExecContext(ctx, query,
		task.AssigneeID, task.Title, task.Description, task.Status, task.Priority,
		task.DueDate, task.EstimatedHours, task.Cost, task.Tags,
		task.CompletedAt, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *taskRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus, completedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status=$1, completed_at=COALESCE($2, completed_at), updated_at=NOW() WHERE id=$3`,
		to, completedAt, id)
	return err
}

func (r *taskRepository) UpdateAssignee(ctx context.Context, id int64, assigneeID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET assignee_id=$1, updated_at=NOW() WHERE id=$2`, assigneeID, id)
	return err
}

func (r *taskRepository) MarkInvoiced(ctx context.Context, id int64, invoiceNumber string, invoiceDate time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			status=$1, invoice_status=$2, invoice_number=$3, invoice_date=$4,
			invoiced_at=NOW(), updated_at=NOW()
		WHERE id=$5 AND status=$6 AND deleted=FALSE`,
		models.StatusInvoiced, models.Invoiced, invoiceNumber, invoiceDate,
		id, models.StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("mark invoiced: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *taskRepository) ListInvoiceable(ctx context.Context, filter models.TaskFilter) ([]models.TaskView, error) {
	conditions := []string{
		"t.deleted = FALSE",
		"t.status = $1",
		"(t.invoice_status IS NULL OR t.invoice_status <> $2)",
	}
	args := []interface{}{models.StatusCompleted, models.Invoiced}
	conditions, args = buildTaskConditions(filter, conditions, args)

	query := `SELECT ` + taskViewColumns + taskViewJoin +
		` WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY t.completed_at ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoiceable: %w", err)
	}
	defer rows.Close()

	var out []models.TaskView
	for rows.Next() {
		v, err := r.scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *taskRepository) AddSubtask(ctx context.Context, st *models.Subtask) error {
	// position assigned atomically at the end of the list
	query := `
		INSERT INTO subtasks (task_id, title, status, position)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position),0)+1 FROM subtasks WHERE task_id=$1))
		RETURNING id, position`
	return r.db.QueryRowContext(ctx, query, st.TaskID, st.Title, st.Status).Scan(&st.ID, &st.Position)
}

func (r *taskRepository) ListSubtasks(ctx context.Context, taskID int64) ([]models.Subtask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, title, status, position FROM subtasks WHERE task_id=$1 ORDER BY position ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	var out []models.Subtask
	for rows.Next() {
		var st models.Subtask
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &st.Status, &st.Position); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *taskRepository) AddComment(ctx context.Context, cm *models.Comment) error {
	query := `
		INSERT INTO task_comments (task_id, author_id, text, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, cm.TaskID, cm.AuthorID, cm.Text).Scan(&cm.ID, &cm.CreatedAt)
}

func (r *taskRepository) ListComments(ctx context.Context, taskID int64) ([]models.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, author_id, text, created_at FROM task_comments WHERE task_id=$1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.TaskID, &cm.AuthorID, &cm.Text, &cm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

func (r *taskRepository) AddAttachment(ctx context.Context, at *models.Attachment) error {
	query := `
		INSERT INTO task_attachments (task_id, name, size, storage_ref, uploaded_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, uploaded_at`
	return r.db.QueryRowContext(ctx, query, at.TaskID, at.Name, at.Size, at.StorageRef).Scan(&at.ID, &at.UploadedAt)
}

func (r *taskRepository) ListAttachments(ctx context.Context, taskID int64) ([]models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, name, size, storage_ref, uploaded_at FROM task_attachments WHERE task_id=$1 ORDER BY uploaded_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var at models.Attachment
		if err := rows.Scan(&at.ID, &at.TaskID, &at.Name, &at.Size, &at.StorageRef, &at.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

func (r *taskRepository) AddTimeEntry(ctx context.Context, te *models.TimeEntry) error {
	query := `
		INSERT INTO time_entries (task_id, entry_date, hours, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return r.db.QueryRowContext(ctx, query, te.TaskID, te.EntryDate, te.Hours, te.Description).Scan(&te.ID)
}

func (r *taskRepository) ListTimeEntries(ctx context.Context, taskID int64) ([]models.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, entry_date, hours, description FROM time_entries WHERE task_id=$1 ORDER BY entry_date ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()

	var out []models.TimeEntry
	for rows.Next() {
		var te models.TimeEntry
		if err := rows.Scan(&te.ID, &te.TaskID, &te.EntryDate, &te.Hours, &te.Description); err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

func (r *taskRepository) RecomputeActualHours(ctx context.Context, taskID int64) (float64, error) {
	// full resummation, not an increment, so repeated calls cannot drift
	var hours float64
	err := r.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			actual_hours = (SELECT COALESCE(SUM(hours),0) FROM time_entries WHERE task_id=$1),
			updated_at = NOW()
		WHERE id=$1
		RETURNING actual_hours`, taskID).Scan(&hours)
	if err != nil {
		return 0, fmt.Errorf("recompute actual hours: %w", err)
	}
	return hours, nil
}
