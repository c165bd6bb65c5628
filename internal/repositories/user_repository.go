package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"caerp/internal/models"
)

type UserRepository interface {
	Store(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByRefreshToken(ctx context.Context, token string) (*models.User, error)
	FindAll(ctx context.Context, limit, offset int) ([]models.User, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, user *models.User) error
	UpdateRefresh(ctx context.Context, id int64, token *string, expiresAt *time.Time) error
	Delete(ctx context.Context, id int64) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role_id, department, avatar_url,
       telegram_chat_id, refresh_token, refresh_expires_at, created_at`

func scanUser(row interface{ Scan(...interface{}) error }, u *models.User) error {
	return row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.Department, &u.AvatarURL,
		&u.TelegramChatID, &u.RefreshToken, &u.RefreshExpiresAt, &u.CreatedAt,
	)
}

func (r *userRepository) Store(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (name, email, password_hash, role_id, department, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, q,
		user.Name, user.Email, user.PasswordHash, user.RoleID, user.Department, user.AvatarURL,
	).Scan(&user.ID, &user.CreatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1`, email), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (r *userRepository) FindByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE refresh_token=$1`, token), &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by refresh token: %w", err)
	}
	return &u, nil
}

func (r *userRepository) FindAll(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []models.User
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	const q = `
		UPDATE users
		SET name=$1, email=$2, role_id=$3, department=$4, avatar_url=$5, telegram_chat_id=$6
		WHERE id=$7`
	if _, err := r.db.ExecContext(ctx, q,
		user.Name, user.Email, user.RoleID, user.Department, user.AvatarURL,
		user.TelegramChatID, user.ID); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateRefresh(ctx context.Context, id int64, token *string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token=$1, refresh_expires_at=$2 WHERE id=$3`, token, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	return err
}
