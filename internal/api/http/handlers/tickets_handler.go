package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// keeps (page-1)*maxPageSize within an int32 offset
	maxPage = math.MaxInt32 / maxPageSize
)

// TicketsHandler exposes the ticket lifecycle and comment thread endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	comments *service.CommentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, comments *service.CommentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, comments: comments}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), caller, service.TicketCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		DepartmentID: req.DepartmentID,
		Priority:     domain.TicketPriority(strings.ToUpper(string(req.Priority))),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	filter, page, pageSize, err := parseTicketQuery(c, caller)
	if err != nil {
		return err
	}
	views, err := h.tickets.ListTickets(c.UserContext(), caller, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		items = append(items, dto.NewTicketViewResponse(&views[i]))
	}
	return c.JSON(fiber.Map{
		"data":       items,
		"pagination": dto.Pagination{Page: page, PageSize: pageSize, Count: len(items)},
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.GetTicket(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketViewResponse(view)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketUpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		DepartmentID: req.DepartmentID,
		AssignedAgent: service.OptionalID{
			Set: req.AssignedAgentID.Set,
			ID:  req.AssignedAgentID.Value,
		},
	}
	if req.Priority != nil {
		p := domain.TicketPriority(strings.ToUpper(string(*req.Priority)))
		input.Priority = &p
	}
	if req.Status != nil {
		s := domain.TicketStatus(strings.ToUpper(string(*req.Status)))
		input.Status = &s
	}

	ticket, err := h.tickets.UpdateTicket(c.UserContext(), caller, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.tickets.DeleteTicket(c.UserContext(), caller, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Transition POST /tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	target := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	ticket, err := h.tickets.TransitionStatus(c.UserContext(), caller, c.Params("id"), target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTransitions GET /tickets/:id/transitions.
func (h *TicketsHandler) ListTransitions(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	current, available, err := h.tickets.ListTransitions(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionsResponse{Current: current, Available: available}})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	views, err := h.comments.ListComments(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(views))
	for i := range views {
		items = append(items, dto.NewCommentResponse(&views[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.comments.AddComment(c.UserContext(), caller, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(view)})
}

func parseTicketQuery(c *fiber.Ctx, caller domain.Caller) (service.TicketListFilter, int, int, error) {
	filter := service.TicketListFilter{}
	details := map[string]any{}

	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range splitList(statusStr) {
			status := domain.TicketStatus(strings.ToUpper(part))
			if !status.IsValid() {
				details["status"] = "unknown status " + part
				continue
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range splitList(priorityStr) {
			priority := domain.TicketPriority(strings.ToUpper(part))
			if !priority.IsValid() {
				details["priority"] = "unknown priority " + part
				continue
			}
			filter.Priorities = append(filter.Priorities, priority)
		}
	}
	filter.DepartmentID = optionalQuery(c, "department_id")
	filter.AssignedAgentID = optionalQuery(c, "assigned_agent_id")
	filter.CreatedBy = optionalQuery(c, "created_by")
	if c.QueryBool("mine") {
		id := caller.ID
		filter.CreatedBy = &id
	}
	filter.SearchTerm = optionalQuery(c, "search")

	var err error
	if filter.CreatedFrom, err = parseTime(c.Query("created_from")); err != nil {
		details["created_from"] = "must be an RFC3339 timestamp"
	}
	if filter.CreatedTo, err = parseTime(c.Query("created_to")); err != nil {
		details["created_to"] = "must be an RFC3339 timestamp"
	}
	page, err := parsePositiveInt(c.Query("page"), 1)
	if err != nil {
		details["page"] = "must be a positive integer"
	} else if page > maxPage {
		details["page"] = "must be at most " + strconv.Itoa(maxPage)
	}
	pageSize, err := parsePositiveInt(c.Query("page_size"), defaultPageSize)
	if err != nil {
		details["page_size"] = "must be a positive integer"
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if len(details) > 0 {
		return filter, 0, 0, apperrors.NewValidationError("invalid ticket filters", details)
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	return filter, page, pageSize, nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func parseTime(val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parsePositiveInt(val string, def int) (int, error) {
	if val == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def, err
	}
	if parsed <= 0 {
		return def, strconv.ErrRange
	}
	return parsed, nil
}
