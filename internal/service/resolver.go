package service

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// nameResolver looks up display names for ticket references, memoizing
// within a single request. References that no longer resolve yield nil.
type nameResolver struct {
	users       repository.UserRepository
	departments repository.DepartmentRepository
	userCache   map[string]*domain.User
	deptCache   map[string]*domain.Department
}

func newNameResolver(repos repository.Repositories) *nameResolver {
	return &nameResolver{
		users:       repos.Users,
		departments: repos.Departments,
		userCache:   make(map[string]*domain.User),
		deptCache:   make(map[string]*domain.Department),
	}
}

func (r *nameResolver) user(ctx context.Context, id *string) (*domain.User, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	if cached, ok := r.userCache[*id]; ok {
		return cached, nil
	}
	user, err := r.users.GetByID(ctx, *id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	r.userCache[*id] = user
	return user, nil
}

func (r *nameResolver) department(ctx context.Context, id *string) (*domain.Department, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	if cached, ok := r.deptCache[*id]; ok {
		return cached, nil
	}
	dept, err := r.departments.GetByID(ctx, *id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	r.deptCache[*id] = dept
	return dept, nil
}

func (r *nameResolver) ticketView(ctx context.Context, ticket domain.Ticket) (domain.TicketView, error) {
	view := domain.TicketView{Ticket: ticket}

	creator, err := r.user(ctx, &ticket.CreatedBy)
	if err != nil {
		return view, err
	}
	if creator != nil {
		view.CreatorName = creator.Name
	}

	dept, err := r.department(ctx, ticket.DepartmentID)
	if err != nil {
		return view, err
	}
	if dept != nil {
		view.DepartmentName = dept.Name
	} else {
		// a dangling department reads as "no department"
		view.DepartmentID = nil
	}

	agent, err := r.user(ctx, ticket.AssignedAgentID)
	if err != nil {
		return view, err
	}
	if agent != nil {
		view.AgentName = agent.Name
	} else {
		view.AssignedAgentID = nil
	}
	return view, nil
}
