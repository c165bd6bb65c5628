package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"caerp/internal/models"
)

type InvoiceRepository interface {
	Store(ctx context.Context, inv *models.Invoice) error
	FindByID(ctx context.Context, id int64) (*models.Invoice, error)
	FindByNumber(ctx context.Context, number string) (*models.Invoice, error)
	FindAll(ctx context.Context, clientID *int64, limit, offset int) ([]models.Invoice, error)
	Count(ctx context.Context, clientID *int64) (int, error)

	// AddToTotals extends an invoice when a partial-failure retry bills
	// the remaining members under the same number.
	AddToTotals(ctx context.Context, id int64, amount, hours float64, taskCount int) error
}

type invoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `id, invoice_number, client_id, invoice_date, total_amount, total_hours,
       task_count, file_path, created_by_id, created_at`

func scanInvoice(row interface{ Scan(...interface{}) error }, inv *models.Invoice) error {
	return row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &inv.InvoiceDate, &inv.TotalAmount, &inv.TotalHours,
		&inv.TaskCount, &inv.FilePath, &inv.CreatedByID, &inv.CreatedAt,
	)
}

func (r *invoiceRepository) Store(ctx context.Context, inv *models.Invoice) error {
	const q = `
		INSERT INTO invoices (
			invoice_number, client_id, invoice_date, total_amount, total_hours,
			task_count, file_path, created_by_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, q,
		inv.InvoiceNumber, inv.ClientID, inv.InvoiceDate, inv.TotalAmount, inv.TotalHours,
		inv.TaskCount, inv.FilePath, inv.CreatedByID,
	).Scan(&inv.ID, &inv.CreatedAt); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepository) FindByID(ctx context.Context, id int64) (*models.Invoice, error) {
	var inv models.Invoice
	err := scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id), &inv)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *invoiceRepository) FindByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var inv models.Invoice
	err := scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number=$1`, number), &inv)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice by number: %w", err)
	}
	return &inv, nil
}

func (r *invoiceRepository) FindAll(ctx context.Context, clientID *int64, limit, offset int) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []interface{}{}
	if clientID != nil {
		query += ` WHERE client_id=$1`
		args = append(args, *clientID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invoiceRepository) AddToTotals(ctx context.Context, id int64, amount, hours float64, taskCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET
			total_amount = total_amount + $1,
			total_hours = total_hours + $2,
			task_count = task_count + $3
		WHERE id=$4`,
		amount, hours, taskCount, id)
	if err != nil {
		return fmt.Errorf("extend invoice totals: %w", err)
	}
	return nil
}

func (r *invoiceRepository) Count(ctx context.Context, clientID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM invoices`
	args := []interface{}{}
	if clientID != nil {
		query += ` WHERE client_id=$1`
		args = append(args, *clientID)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return n, nil
}
