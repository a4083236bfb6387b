package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
)

// StaffHandler exposes endpoints reserved for agents and administrators.
type StaffHandler struct {
	stats     *service.StatsService
	directory *service.DirectoryService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(stats *service.StatsService, directory *service.DirectoryService) *StaffHandler {
	return &StaffHandler{stats: stats, directory: directory}
}

// DashboardStats handles GET /dashboard/stats.
func (h *StaffHandler) DashboardStats(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	stats, err := h.stats.DashboardStats(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDashboardStatsResponse(stats)})
}

// ListAgents handles GET /users/agents.
func (h *StaffHandler) ListAgents(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	agents, err := h.directory.ListAgents(c.UserContext(), caller)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(agents))
	for i := range agents {
		items = append(items, dto.NewUserResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
