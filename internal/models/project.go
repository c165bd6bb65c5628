package models

import "time"

type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "Planning"
	ProjectInProgress ProjectStatus = "In-Progress"
	ProjectOnHold     ProjectStatus = "On-Hold"
	ProjectCompleted  ProjectStatus = "Completed"
	ProjectCancelled  ProjectStatus = "Cancelled"
)

func IsAllowedProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// Project groups tasks for a single client. The three derived fields are
// recomputed from non-deleted child tasks after every task status mutation.
type Project struct {
	ID                   int64         `json:"id"`
	ClientID             int64         `json:"client_id"`
	Name                 string        `json:"name"`
	Status               ProjectStatus `json:"status"`
	Priority             TaskPriority  `json:"priority"`
	StartDate            *time.Time    `json:"start_date,omitempty"`
	DueDate              *time.Time    `json:"due_date,omitempty"`
	Budget               *float64      `json:"budget,omitempty"`
	CompletionPercentage int           `json:"completion_percentage"`
	TotalTasks           int           `json:"total_tasks"`
	CompletedTasks       int           `json:"completed_tasks"`
	Deleted              bool          `json:"deleted"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

type ProjectFilter struct {
	ClientID *int64
	Status   *ProjectStatus
}

type ProjectNote struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProjectDocument struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	StorageRef string    `json:"storage_ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}
