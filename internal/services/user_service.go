package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/repositories"
)

type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	RoleID     int
	Department string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserService struct {
	repo  repositories.UserRepository
	auth  *AuthService
	email EmailService
}

func NewUserService(repo repositories.UserRepository, auth *AuthService, email EmailService) *UserService {
	return &UserService{repo: repo, auth: auth, email: email}
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Email) == "" {
		return nil, fmt.Errorf("%w: name and email are required", errs.ErrValidation)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", errs.ErrValidation)
	}
	existing, err := s.repo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", errs.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if input.RoleID == 0 {
		input.RoleID = authz.RoleStaff
	}

	user := &models.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		RoleID:       input.RoleID,
		Department:   input.Department,
	}
	if err := s.repo.Store(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: invalid credentials", errs.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid credentials", errs.ErrForbidden)
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token required", errs.ErrValidation)
	}
	user, err := s.repo.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if user == nil || user.RefreshExpiresAt == nil || user.RefreshExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: invalid or expired refresh token", errs.ErrForbidden)
	}
	return s.issueTokens(ctx, user)
}

func (s *UserService) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.auth.GenerateAccessToken(user.ID, user.RoleID)
	if err != nil {
		return nil, err
	}
	refresh, expiresAt := s.auth.NewRefreshToken()
	if err := s.repo.UpdateRefresh(ctx, user.ID, &refresh, &expiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", errs.ErrNotFound, id)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	users, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return users, total, nil
}

func (s *UserService) Update(ctx context.Context, actor Actor, user *models.User) error {
	if err := requireMutate(actor, authz.ResourceUsers, authz.ActionEdit); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

func (s *UserService) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := requireMutate(actor, authz.ResourceUsers, authz.ActionDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

// NotifyAssignment fans out the assignment notice over the channels the
// assignee has configured. Best-effort.
func (s *UserService) NotifyAssignment(ctx context.Context, tg *TelegramService, assigneeID int64, taskTitle string) {
	user, err := s.repo.FindByID(ctx, assigneeID)
	if err != nil || user == nil {
		log.Printf("[notify][skip] assignee=%d: %v", assigneeID, err)
		return
	}
	if s.email != nil && user.Email != "" {
		if err := s.email.SendTaskAssignedEmail(user.Email, user.Name, taskTitle); err != nil {
			log.Printf("[notify][email][warn] user=%d: %v", user.ID, err)
		}
	}
	if tg != nil && user.TelegramChatID != nil {
		if err := tg.SendMessage(*user.TelegramChatID, fmt.Sprintf("New task: <b>%s</b>", taskTitle)); err != nil {
			log.Printf("[notify][tg][warn] user=%d: %v", user.ID, err)
		}
	}
}
