package models

import "time"

// Invoice is the persisted record of a billed batch of tasks.
type Invoice struct {
	ID            int64     `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	ClientID      int64     `json:"client_id"`
	InvoiceDate   time.Time `json:"invoice_date"`
	TotalAmount   float64   `json:"total_amount"`
	TotalHours    float64   `json:"total_hours"`
	TaskCount     int       `json:"task_count"`
	FilePath      string    `json:"file_path,omitempty"`
	CreatedByID   int64     `json:"created_by_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// BatchTotals is the result of totalling a candidate batch before billing.
type BatchTotals struct {
	TotalAmount float64 `json:"total_amount"`
	TotalHours  float64 `json:"total_hours"`
}

type BatchFailure struct {
	TaskID int64  `json:"id"`
	Error  string `json:"error"`
}

// InvoiceBatchResult reports the exact per-task outcome of createInvoice.
// The loop never aborts on first failure; callers re-select and retry the
// failed subset.
type InvoiceBatchResult struct {
	InvoiceNumber string         `json:"invoice_number"`
	InvoiceDate   time.Time      `json:"invoice_date"`
	ClientID      int64          `json:"client_id"`
	TotalAmount   float64        `json:"total_amount"`
	TotalHours    float64        `json:"total_hours"`
	Succeeded     []int64        `json:"succeeded"`
	Failed        []BatchFailure `json:"failed"`
}
