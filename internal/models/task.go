package models

import (
	"time"

	"github.com/lib/pq"
)

// TaskStatus defines the possible statuses for a task. Values are
// case-sensitive on the wire; clients must not invent new ones.
type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusInProgress TaskStatus = "In-Progress"
	StatusReview     TaskStatus = "Review"
	StatusCompleted  TaskStatus = "Completed"
	StatusCancelled  TaskStatus = "Cancelled"
	StatusInvoiced   TaskStatus = "Invoiced"
)

func IsAllowedTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusReview, StatusCompleted, StatusCancelled, StatusInvoiced:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "High"
	PriorityMedium TaskPriority = "Medium"
	PriorityLow    TaskPriority = "Low"
)

type InvoiceStatus string

const (
	NotInvoiced InvoiceStatus = "Not Invoiced"
	Invoiced    InvoiceStatus = "Invoiced"
)

// Task represents a billable unit of work inside a project.
type Task struct {
	ID             int64          `json:"id"`
	ProjectID      int64          `json:"project_id"`
	AssigneeID     *int64         `json:"assignee_id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         TaskStatus     `json:"status"`
	Priority       TaskPriority   `json:"priority"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	EstimatedHours float64        `json:"estimated_hours"`
	ActualHours    float64        `json:"actual_hours"` // derived: sum of time entries
	Cost           float64        `json:"cost"`
	Tags           pq.StringArray `json:"tags"`
	InvoiceStatus  InvoiceStatus  `json:"invoice_status"`
	InvoiceNumber  *string        `json:"invoice_number,omitempty"`
	InvoiceDate    *time.Time     `json:"invoice_date,omitempty"`
	InvoicedAt     *time.Time     `json:"invoiced_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Deleted        bool           `json:"deleted"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ProjectRef / UserRef are the denormalized reference shapes used by the
// read view. Writes accept bare ids.
type ProjectRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserRef struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// TaskView is the serialized read shape of a task.
type TaskView struct {
	Task
	Project    ProjectRef `json:"project"`
	AssignedTo *UserRef   `json:"assigned_to,omitempty"`
}

// TaskFilter defines the available parameters for filtering tasks.
type TaskFilter struct {
	ProjectID  *int64
	AssigneeID *int64
	Status     *TaskStatus
	Priority   *TaskPriority
}

type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in-progress"
	SubtaskCompleted  SubtaskStatus = "completed"
)

type Subtask struct {
	ID       int64         `json:"id"`
	TaskID   int64         `json:"task_id"`
	Title    string        `json:"title"`
	Status   SubtaskStatus `json:"status"`
	Position int           `json:"position"`
}

// Comment is append-only; there is no edit or delete path.
type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	AuthorID  int64     `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment holds metadata only; the binary lives with the file store.
type Attachment struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	StorageRef string    `json:"storage_ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type TimeEntry struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	EntryDate   time.Time `json:"date"`
	Hours       float64   `json:"hours"`
	Description string    `json:"description"`
}
