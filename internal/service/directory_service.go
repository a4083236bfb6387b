package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/permission"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// DirectoryService exposes the read-only lookups the ticket forms need.
type DirectoryService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewDirectoryService constructs the service.
func NewDirectoryService(store repository.Store, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{store: store, logger: nopIfNil(logger)}
}

// ListDepartments returns every department; any signed-in user may call it.
func (s *DirectoryService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	departments, err := s.store.Repos().Departments.List(ctx)
	if err != nil {
		return nil, internalFailure(s.logger, "list departments", err)
	}
	return departments, nil
}

// ListAgents returns the active agents a ticket can be assigned to.
func (s *DirectoryService) ListAgents(ctx context.Context, caller domain.Caller) ([]domain.User, error) {
	if decision := permission.Evaluate(&caller, nil, permission.OpListAgents); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}
	agents, err := s.store.Repos().Users.ListByRole(ctx, domain.RoleAgent, true)
	if err != nil {
		return nil, internalFailure(s.logger, "list agents", err)
	}
	return agents, nil
}
