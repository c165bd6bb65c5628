package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"caerp/internal/authz"
	"caerp/internal/errs"
	"caerp/internal/models"
	"caerp/internal/repositories"
)

type ClientService struct {
	repo repositories.ClientRepository
}

func NewClientService(repo repositories.ClientRepository) *ClientService {
	return &ClientService{repo: repo}
}

func (s *ClientService) Create(ctx context.Context, actor Actor, client *models.Client) error {
	if err := requireMutate(actor, authz.ResourceClients, authz.ActionCreate); err != nil {
		return err
	}
	if strings.TrimSpace(client.Name) == "" {
		return fmt.Errorf("%w: name is required", errs.ErrValidation)
	}
	if client.TaxID != "" {
		existing, err := s.repo.FindByTaxID(ctx, client.TaxID)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorage, err)
		}
		if existing != nil {
			return fmt.Errorf("%w: client with tax id %s already exists", errs.ErrValidation, client.TaxID)
		}
	}
	client.CreatedAt = time.Now()
	if err := s.repo.Store(ctx, client); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

func (s *ClientService) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %d", errs.ErrNotFound, id)
	}
	return client, nil
}

func (s *ClientService) List(ctx context.Context, limit, offset int) ([]models.Client, int, error) {
	clients, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return clients, total, nil
}

func (s *ClientService) Search(ctx context.Context, name string) ([]models.Client, error) {
	return s.repo.FindByName(ctx, name)
}

func (s *ClientService) Update(ctx context.Context, actor Actor, client *models.Client) error {
	if err := requireMutate(actor, authz.ResourceClients, authz.ActionEdit); err != nil {
		return err
	}
	current, err := s.GetByID(ctx, client.ID)
	if err != nil {
		return err
	}
	if current.Deleted {
		return fmt.Errorf("%w: client %d", errs.ErrNotFound, client.ID)
	}
	if err := s.repo.Update(ctx, client); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

func (s *ClientService) SoftDelete(ctx context.Context, actor Actor, id int64) error {
	if err := requireMutate(actor, authz.ResourceClients, authz.ActionDelete); err != nil {
		return err
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}
