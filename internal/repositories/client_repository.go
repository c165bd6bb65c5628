package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"caerp/internal/models"
)

type ClientRepository interface {
	Store(ctx context.Context, client *models.Client) error
	FindByID(ctx context.Context, id int64) (*models.Client, error)
	FindByTaxID(ctx context.Context, taxID string) (*models.Client, error)
	FindAll(ctx context.Context, limit, offset int) ([]models.Client, error)
	Count(ctx context.Context) (int, error)
	FindByName(ctx context.Context, name string) ([]models.Client, error)
	Update(ctx context.Context, client *models.Client) error
	SoftDelete(ctx context.Context, id int64) error
}

type clientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `id, name, email, phone, address, tax_id, deleted, created_at`

func scanClient(row interface{ Scan(...interface{}) error }, c *models.Client) error {
	return row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.Deleted, &c.CreatedAt)
}

func (r *clientRepository) Store(ctx context.Context, client *models.Client) error {
	const q = `
		INSERT INTO clients (name, email, phone, address, tax_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, q,
		client.Name, client.Email, client.Phone, client.Address, client.TaxID,
	).Scan(&client.ID, &client.CreatedAt); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (r *clientRepository) FindByID(ctx context.Context, id int64) (*models.Client, error) {
	var c models.Client
	err := scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id=$1`, id), &c)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

func (r *clientRepository) FindByTaxID(ctx context.Context, taxID string) (*models.Client, error) {
	var c models.Client
	err := scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE tax_id=$1 AND deleted=FALSE`, taxID), &c)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get client by tax id: %w", err)
	}
	return &c, nil
}

func (r *clientRepository) FindAll(ctx context.Context, limit, offset int) ([]models.Client, error) {
	const q = `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE deleted=FALSE
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var res []models.Client
	for rows.Next() {
		var c models.Client
		if err := scanClient(rows, &c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *clientRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clients WHERE deleted=FALSE`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clients: %w", err)
	}
	return n, nil
}

func (r *clientRepository) FindByName(ctx context.Context, name string) ([]models.Client, error) {
	const q = `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE LOWER(name) LIKE $1 AND deleted=FALSE
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, "%"+strings.ToLower(name)+"%")
	if err != nil {
		return nil, fmt.Errorf("find clients by name: %w", err)
	}
	defer rows.Close()

	var res []models.Client
	for rows.Next() {
		var c models.Client
		if err := scanClient(rows, &c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *clientRepository) Update(ctx context.Context, client *models.Client) error {
	const q = `
		UPDATE clients
		SET name=$1, email=$2, phone=$3, address=$4, tax_id=$5
		WHERE id=$6`
	if _, err := r.db.ExecContext(ctx, q,
		client.Name, client.Email, client.Phone, client.Address, client.TaxID, client.ID); err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return nil
}

func (r *clientRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE clients SET deleted=TRUE WHERE id=$1`, id)
	return err
}
