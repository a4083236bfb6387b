package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/permission"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketService applies validated mutations to tickets.
type TicketService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	DepartmentID string
	Priority     domain.TicketPriority
}

// OptionalID distinguishes "not sent" from "sent as null".
type OptionalID struct {
	Set bool
	ID  *string
}

// TicketUpdateInput is a partial update. Nil fields are left alone; fields
// the caller may not change are dropped silently.
type TicketUpdateInput struct {
	Title         *string
	Description   *string
	Priority      *domain.TicketPriority
	DepartmentID  *string
	Status        *domain.TicketStatus
	AssignedAgent OptionalID
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	CreatedBy       *string
	DepartmentID    *string
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	SearchTerm      *string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Limit           int
	Offset          int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     nopIfNil(deps.Logger),
	}
}

// CreateTicket opens a ticket on behalf of the caller.
func (s *TicketService) CreateTicket(ctx context.Context, caller domain.Caller, input TicketCreateInput) (*domain.Ticket, error) {
	if decision := permission.Evaluate(&caller, nil, permission.OpCreate); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	departmentID := strings.TrimSpace(input.DepartmentID)

	details := map[string]any{}
	if title == "" {
		details["title"] = "a title is required"
	}
	if description == "" {
		details["description"] = "a description is required"
	}
	if departmentID == "" {
		details["department_id"] = "a department is required"
	}
	if !input.Priority.IsValid() {
		details["priority"] = "priority must be LOW, MEDIUM or HIGH"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("the ticket is missing required information", details)
	}

	repos := s.store.Repos()
	if _, err := repos.Users.GetByID(ctx, caller.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInvalidReference("your account could not be found", map[string]any{"user_id": caller.ID})
		}
		return nil, internalFailure(s.logger, "load creator", err, zap.String("user_id", caller.ID))
	}
	if err := checkDepartment(ctx, repos, departmentID); err != nil {
		return nil, s.mapReferenceErr(err, "load department")
	}

	ticket := &domain.Ticket{
		Title:        title,
		Description:  description,
		Priority:     input.Priority,
		Status:       domain.TicketStatusOpen,
		CreatedBy:    caller.ID,
		DepartmentID: &departmentID,
	}
	if err := repos.Tickets.Create(ctx, ticket); err != nil {
		return nil, internalFailure(s.logger, "create ticket", err)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorFor(caller),
		Payload: events.TicketCreatedPayload{
			DepartmentID: ticket.DepartmentID,
			Priority:     ticket.Priority,
			Title:        ticket.Title,
		},
	})
	return ticket, nil
}

// ListTickets returns ticket summaries, newest first.
func (s *TicketService) ListTickets(ctx context.Context, caller domain.Caller, filter TicketListFilter) ([]domain.TicketView, error) {
	if decision := permission.Evaluate(&caller, nil, permission.OpRead); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}
	repos := s.store.Repos()
	tickets, err := repos.Tickets.List(ctx, repository.TicketFilter{
		CreatedBy:       filter.CreatedBy,
		DepartmentID:    filter.DepartmentID,
		AssignedAgentID: filter.AssignedAgentID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		SearchTerm:      filter.SearchTerm,
		CreatedFrom:     filter.CreatedFrom,
		CreatedTo:       filter.CreatedTo,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		return nil, internalFailure(s.logger, "list tickets", err)
	}

	resolver := newNameResolver(repos)
	views := make([]domain.TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		view, err := resolver.ticketView(ctx, ticket)
		if err != nil {
			return nil, internalFailure(s.logger, "resolve ticket references", err, zap.String("ticket_id", ticket.ID))
		}
		views = append(views, view)
	}
	return views, nil
}

// GetTicket returns one ticket with resolved names.
func (s *TicketService) GetTicket(ctx context.Context, caller domain.Caller, ticketID string) (*domain.TicketView, error) {
	repos := s.store.Repos()
	ticket, err := s.loadTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpRead); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}
	view, err := newNameResolver(repos).ticketView(ctx, *ticket)
	if err != nil {
		return nil, internalFailure(s.logger, "resolve ticket references", err, zap.String("ticket_id", ticket.ID))
	}
	return &view, nil
}

// UpdateTicket applies the subset of input the caller is allowed to change.
// Staff may write any status directly; only the shortcut path in
// TransitionStatus is held to the convenience graph.
func (s *TicketService) UpdateTicket(ctx context.Context, caller domain.Caller, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	repos := s.store.Repos()
	ticket, err := s.loadTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, err
	}
	decision := permission.Evaluate(&caller, ticket, permission.OpUpdate)
	if !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}

	updated := *ticket
	changed := []string{}
	details := map[string]any{}

	if input.Title != nil && decision.Fields.Has(permission.FieldTitle) {
		updated.Title = strings.TrimSpace(*input.Title)
		if updated.Title == "" {
			details["title"] = "the title cannot be empty"
		}
		changed = append(changed, string(permission.FieldTitle))
	}
	if input.Description != nil && decision.Fields.Has(permission.FieldDescription) {
		updated.Description = strings.TrimSpace(*input.Description)
		if updated.Description == "" {
			details["description"] = "the description cannot be empty"
		}
		changed = append(changed, string(permission.FieldDescription))
	}
	if input.Priority != nil && decision.Fields.Has(permission.FieldPriority) {
		updated.Priority = *input.Priority
		if !updated.Priority.IsValid() {
			details["priority"] = "priority must be LOW, MEDIUM or HIGH"
		}
		changed = append(changed, string(permission.FieldPriority))
	}
	checkDept := false
	if input.DepartmentID != nil && decision.Fields.Has(permission.FieldDepartment) {
		deptID := strings.TrimSpace(*input.DepartmentID)
		if deptID == "" {
			details["department_id"] = "a department is required"
		}
		updated.DepartmentID = &deptID
		checkDept = true
		changed = append(changed, string(permission.FieldDepartment))
	}
	if input.Status != nil && decision.Fields.Has(permission.FieldStatus) {
		updated.Status = *input.Status
		if !updated.Status.IsValid() {
			details["status"] = "status must be OPEN, IN_PROGRESS, PENDING or CLOSED"
		}
		changed = append(changed, string(permission.FieldStatus))
	}
	checkAgent := false
	if input.AssignedAgent.Set && decision.Fields.Has(permission.FieldAssignedAgent) {
		updated.AssignedAgentID = nil
		if input.AssignedAgent.ID != nil && strings.TrimSpace(*input.AssignedAgent.ID) != "" {
			agentID := strings.TrimSpace(*input.AssignedAgent.ID)
			updated.AssignedAgentID = &agentID
			checkAgent = true
		}
		changed = append(changed, string(permission.FieldAssignedAgent))
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("some of the changes are not valid", details)
	}

	if checkDept {
		if err := checkDepartment(ctx, repos, *updated.DepartmentID); err != nil {
			return nil, s.mapReferenceErr(err, "load department")
		}
	}
	if checkAgent {
		if err := checkAgentRef(ctx, repos, *updated.AssignedAgentID); err != nil {
			return nil, s.mapReferenceErr(err, "load agent")
		}
	}

	if len(changed) == 0 {
		return ticket, nil
	}
	if err := repos.Tickets.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, internalFailure(s.logger, "update ticket", err, zap.String("ticket_id", ticketID))
	}

	actor := actorFor(caller)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: updated.ID,
		Actor:    actor,
		Payload:  events.TicketUpdatedPayload{Fields: changed},
	})
	if updated.Status != ticket.Status {
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: updated.ID,
			Actor:    actor,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: ticket.Status,
				NewStatus: updated.Status,
			},
		})
	}
	if !sameRef(updated.AssignedAgentID, ticket.AssignedAgentID) {
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: updated.ID,
			Actor:    actor,
			Payload: events.TicketAssignedPayload{
				OldAgentID: ticket.AssignedAgentID,
				NewAgentID: updated.AssignedAgentID,
			},
		})
	}
	return &updated, nil
}

// TransitionStatus performs a one-click status action, which must follow
// the convenience graph.
func (s *TicketService) TransitionStatus(ctx context.Context, caller domain.Caller, ticketID string, target domain.TicketStatus) (*domain.Ticket, error) {
	repos := s.store.Repos()
	ticket, err := s.loadTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpTransition); !decision.Allowed {
		return nil, apperrors.NewForbidden(decision.Reason)
	}
	if !target.IsValid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{
			"status": "status must be OPEN, IN_PROGRESS, PENDING or CLOSED",
		})
	}
	if !isValidTransition(ticket.Status, target) {
		return nil, apperrors.NewInvalidTransition("this status change is not available for the ticket right now", map[string]any{
			"from":    ticket.Status,
			"to":      target,
			"allowed": AllowedTransitions(ticket.Status),
		})
	}

	oldStatus := ticket.Status
	ticket.Status = target
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, internalFailure(s.logger, "transition ticket", err, zap.String("ticket_id", ticketID))
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorFor(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: target,
			Shortcut:  true,
		},
	})
	return ticket, nil
}

// ListTransitions returns the status actions the caller can take on the
// ticket right now. Callers who cannot use status actions get none.
func (s *TicketService) ListTransitions(ctx context.Context, caller domain.Caller, ticketID string) (domain.TicketStatus, []domain.TicketStatus, error) {
	ticket, err := s.loadTicket(ctx, s.store.Repos(), ticketID)
	if err != nil {
		return "", nil, err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpRead); !decision.Allowed {
		return "", nil, apperrors.NewForbidden(decision.Reason)
	}
	if !permission.Evaluate(&caller, ticket, permission.OpTransition).Allowed {
		return ticket.Status, []domain.TicketStatus{}, nil
	}
	return ticket.Status, AllowedTransitions(ticket.Status), nil
}

// DeleteTicket removes a ticket and its comments as one unit of work.
func (s *TicketService) DeleteTicket(ctx context.Context, caller domain.Caller, ticketID string) error {
	ticket, err := s.loadTicket(ctx, s.store.Repos(), ticketID)
	if err != nil {
		return err
	}
	if decision := permission.Evaluate(&caller, ticket, permission.OpDelete); !decision.Allowed {
		return apperrors.NewForbidden(decision.Reason)
	}

	var removed int64
	err = s.store.InTx(ctx, func(tx repository.Repositories) error {
		n, err := tx.Comments.DeleteByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		removed = n
		return tx.Tickets.Delete(ctx, ticket.ID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ticketNotFound(ticketID)
		}
		return internalFailure(s.logger, "delete ticket", err, zap.String("ticket_id", ticketID))
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    actorFor(caller),
		Payload:  events.TicketDeletedPayload{CommentsRemoved: removed},
	})
	return nil
}

func (s *TicketService) loadTicket(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, internalFailure(s.logger, "load ticket", err, zap.String("ticket_id", ticketID))
	}
	return ticket, nil
}

// mapReferenceErr passes domain errors through and hides store failures.
func (s *TicketService) mapReferenceErr(err error, msg string) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return internalFailure(s.logger, msg, err)
}

func checkDepartment(ctx context.Context, repos repository.Repositories, departmentID string) error {
	if _, err := repos.Departments.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInvalidReference("the selected department does not exist", map[string]any{"department_id": departmentID})
		}
		return err
	}
	return nil
}

func checkAgentRef(ctx context.Context, repos repository.Repositories, agentID string) error {
	agent, err := repos.Users.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInvalidReference("the selected agent does not exist", map[string]any{"assigned_agent_id": agentID})
		}
		return err
	}
	if agent.Role != domain.RoleAgent {
		return apperrors.NewInvalidReference("tickets can only be assigned to agents", map[string]any{"assigned_agent_id": agentID})
	}
	if !agent.Active {
		return apperrors.NewInvalidReference("the selected agent is no longer active", map[string]any{"assigned_agent_id": agentID})
	}
	return nil
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
