package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"caerp/internal/models"
)

// UnbilledRow is one client's completed-but-unbilled exposure.
type UnbilledRow struct {
	ClientID   int64   `json:"client_id"`
	ClientName string  `json:"client_name"`
	TaskCount  int     `json:"task_count"`
	Amount     float64 `json:"amount"`
	Hours      float64 `json:"hours"`
}

type ReportRepository interface {
	TaskStatusCounts(ctx context.Context) (map[models.TaskStatus]int, error)
	UnbilledByClient(ctx context.Context) ([]UnbilledRow, error)
	InvoicedTotal(ctx context.Context) (float64, int, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) TaskStatusCounts(ctx context.Context) (map[models.TaskStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks WHERE deleted=FALSE GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := map[models.TaskStatus]int{}
	for rows.Next() {
		var st models.TaskStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

func (r *reportRepository) UnbilledByClient(ctx context.Context) ([]UnbilledRow, error) {
	// same eligibility predicate the invoicing aggregator uses
	query := `
		SELECT c.id, c.name, COUNT(t.id),
		       COALESCE(SUM(t.cost), 0),
		       COALESCE(SUM(CASE WHEN t.actual_hours > 0 THEN t.actual_hours ELSE t.estimated_hours END), 0)
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		JOIN clients c ON c.id = p.client_id
		WHERE t.deleted=FALSE AND t.status=$1
		  AND (t.invoice_status IS NULL OR t.invoice_status <> $2)
		GROUP BY c.id, c.name
		ORDER BY SUM(t.cost) DESC`
	rows, err := r.db.QueryContext(ctx, query, models.StatusCompleted, models.Invoiced)
	if err != nil {
		return nil, fmt.Errorf("unbilled by client: %w", err)
	}
	defer rows.Close()

	var out []UnbilledRow
	for rows.Next() {
		var row UnbilledRow
		if err := rows.Scan(&row.ClientID, &row.ClientName, &row.TaskCount, &row.Amount, &row.Hours); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *reportRepository) InvoicedTotal(ctx context.Context) (float64, int, error) {
	var total float64
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_amount),0), COUNT(*) FROM invoices`).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("invoiced total: %w", err)
	}
	return total, count, nil
}
