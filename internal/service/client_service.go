package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/crm-access/internal/config"
	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/repository"
	apperrors "github.com/spec-kit/crm-access/pkg/util/errorutil"
)

// ClientService serves the CRM records behind the permission guards. It
// assumes the caller has already been authorized.
type ClientService struct {
	clients   repository.ClientRepository
	salesReps repository.SalesRepRepository
	timeout   time.Duration
}

// NewClientService builds the service.
func NewClientService(cfg config.AuthConfig, clients repository.ClientRepository, salesReps repository.SalesRepRepository) *ClientService {
	return &ClientService{clients: clients, salesReps: salesReps, timeout: cfg.StoreTimeout()}
}

// ListClients returns clients matching filter.
func (s *ClientService) ListClients(ctx context.Context, filter repository.ClientFilter) ([]domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	clients, err := s.clients.List(ctx, filter)
	if err != nil {
		return nil, errUnavailable(err)
	}
	return clients, nil
}

// RenameClient updates a client's name.
func (s *ClientService) RenameClient(ctx context.Context, id int64, name string) error {
	return s.rename(ctx, "client", id, name, s.clients.UpdateName)
}

// RenameStakeholder updates a stakeholder's name.
func (s *ClientService) RenameStakeholder(ctx context.Context, id int64, name string) error {
	return s.rename(ctx, "stakeholder", id, name, s.clients.UpdateStakeholderName)
}

// ListSalesReps returns sales rep profiles.
func (s *ClientService) ListSalesReps(ctx context.Context, limit, offset int) ([]domain.SalesRep, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reps, err := s.salesReps.List(ctx, limit, offset)
	if err != nil {
		return nil, errUnavailable(err)
	}
	return reps, nil
}

// RenameSalesRep updates a sales rep profile's name.
func (s *ClientService) RenameSalesRep(ctx context.Context, id int64, name string) error {
	return s.rename(ctx, "sales rep", id, name, s.salesReps.UpdateName)
}

func (s *ClientService) rename(ctx context.Context, resource string, id int64, name string, update func(context.Context, int64, string) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := update(ctx, id, name); err != nil {
		if isNotFound(err) {
			return apperrors.NewNotFound(resource, map[string]any{"id": id})
		}
		return errUnavailable(err)
	}
	return nil
}
